package validation

import (
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Form field names of the chat endpoint.
const (
	FieldMessage = "message"
	FieldProfile = "profile"
	FieldFiles   = "files"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ChatForm holds the text fields of a chat submission. A nil field was not
// sent at all; an empty string was sent empty.
type ChatForm struct {
	Message *string `form:"message" validate:"required"`
	Profile *string `form:"profile" validate:"required"`
}

// ChatFormFromValues picks the chat fields out of parsed form values. The
// first value wins when a field is repeated.
func ChatFormFromValues(values url.Values) ChatForm {
	var form ChatForm
	if v, ok := values[FieldMessage]; ok && len(v) > 0 {
		form.Message = &v[0]
	}
	if v, ok := values[FieldProfile]; ok && len(v) > 0 {
		form.Profile = &v[0]
	}
	return form
}

// MissingFields returns the names of required fields absent from form, in
// declaration order. It returns nil when the form is complete.
func MissingFields(form ChatForm) []string {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	missing := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		missing = append(missing, fe.Field())
	}
	return missing
}
