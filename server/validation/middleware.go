package validation

import (
	"net/http"

	"github.com/teilomillet/assure/config"
	"github.com/teilomillet/assure/errors"
	"github.com/teilomillet/assure/server/middleware"
	"go.uber.org/zap"
)

// ChatFormValidator parses chat submissions and rejects the ones the chat
// handler cannot serve. After it passes, r.PostForm holds the text fields
// and r.MultipartForm, when the body was multipart, holds the files.
type ChatFormValidator struct {
	limits config.UploadConfig
	logger *zap.Logger
}

// NewChatFormValidator creates the validator with the given upload limits.
func NewChatFormValidator(limits config.UploadConfig, logger *zap.Logger) *ChatFormValidator {
	return &ChatFormValidator{limits: limits, logger: logger}
}

// Middleware enforces, in order:
//   - the body fits in MaxRequestBytes (413)
//   - the body parses as a multipart or url-encoded form (400)
//   - message and profile are present (400, details.missing_fields)
//   - at most MaxFiles files were uploaded (413)
func (v *ChatFormValidator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetRequestID(r.Context())

		if r.ContentLength > v.limits.MaxRequestBytes {
			v.reject(w, tooLarge(requestID, r.ContentLength, v.limits.MaxRequestBytes))
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, v.limits.MaxRequestBytes)

		if err := r.ParseMultipartForm(v.limits.MaxMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				v.reject(w, tooLarge(requestID, -1, v.limits.MaxRequestBytes))
				return
			}
			v.reject(w, errors.NewValidationError(requestID, "Invalid form body", map[string]interface{}{
				"error": err.Error(),
			}))
			return
		}

		if missing := MissingFields(ChatFormFromValues(r.PostForm)); len(missing) > 0 {
			v.reject(w, errors.NewValidationError(requestID, "Missing required form fields", map[string]interface{}{
				"missing_fields": missing,
			}))
			return
		}

		if files := FileCount(r); v.limits.MaxFiles > 0 && files > v.limits.MaxFiles {
			v.reject(w, errors.NewPayloadTooLargeError(requestID, "Too many files uploaded", map[string]interface{}{
				"files":     files,
				"max_files": v.limits.MaxFiles,
			}))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (v *ChatFormValidator) reject(w http.ResponseWriter, err *errors.APIError) {
	errors.LogError(v.logger, err, err.RequestID)
	errors.WriteError(w, err)
}

func tooLarge(requestID string, size, limit int64) *errors.APIError {
	details := map[string]interface{}{"max_request_bytes": limit}
	if size >= 0 {
		details["content_length"] = size
	}
	return errors.NewPayloadTooLargeError(requestID, "Request body too large", details)
}

// FileCount returns the number of parts uploaded under the files field.
func FileCount(r *http.Request) int {
	if r.MultipartForm == nil {
		return 0
	}
	return len(r.MultipartForm.File[FieldFiles])
}
