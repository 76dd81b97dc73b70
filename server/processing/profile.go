package processing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap/zapcore"
)

// NoProfileMessage stands in for the profile block when no field has a value.
const NoProfileMessage = "No profile information provided."

// ProfileField is one profile entry rendered as text.
type ProfileField struct {
	Key   string
	Value string
}

// Profile is the ordered set of non-empty profile fields.
//
// Fields follow the key order of the submitted JSON object. A key that
// appears twice keeps the position of its first occurrence and the value of
// its last one. Fields whose value is empty are dropped: null, false, zero,
// empty or whitespace-only strings, empty arrays and empty objects.
type Profile struct {
	fields []ProfileField
}

// ParseProfile parses a JSON object into a Profile. Anything else, including
// valid JSON that is not an object, is an error. Callers treat an error as an
// empty profile.
func ParseProfile(raw string) (Profile, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return Profile{}, errors.New("profile must be a JSON object")
	}

	var (
		order  []string
		values = make(map[string]json.RawMessage)
	)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Profile{}, fmt.Errorf("read profile key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return Profile{}, fmt.Errorf("unexpected profile token %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return Profile{}, fmt.Errorf("read profile field %q: %w", key, err)
		}
		if _, seen := values[key]; !seen {
			order = append(order, key)
		}
		values[key] = value
	}
	if _, err := dec.Token(); err != nil {
		return Profile{}, fmt.Errorf("read profile end: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Profile{}, errors.New("unexpected data after profile object")
	}

	var p Profile
	for _, key := range order {
		if text, ok := renderValue(values[key]); ok {
			p.fields = append(p.fields, ProfileField{Key: key, Value: text})
		}
	}
	return p, nil
}

// renderValue returns the text of a JSON value and whether it counts as set.
func renderValue(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		if strings.TrimSpace(s) == "" {
			return "", false
		}
		return s, true
	case 'n', 'f':
		// null, false
		return "", false
	case 't':
		return "true", true
	case '[', '{':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return "", false
		}
		if buf.Len() == 2 {
			// [] or {}
			return "", false
		}
		return buf.String(), true
	default:
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil || f == 0 {
			return "", false
		}
		return string(raw), true
	}
}

// NewProfile builds a Profile from already rendered fields, dropping the
// ones with blank values.
func NewProfile(fields ...ProfileField) Profile {
	var p Profile
	for _, f := range fields {
		if strings.TrimSpace(f.Value) != "" {
			p.fields = append(p.fields, f)
		}
	}
	return p
}

// Fields returns the non-empty fields in order.
func (p Profile) Fields() []ProfileField {
	return append([]ProfileField(nil), p.fields...)
}

// Get returns the value of field key, or "" when it is unset.
func (p Profile) Get(key string) string {
	for i := len(p.fields) - 1; i >= 0; i-- {
		if p.fields[i].Key == key {
			return p.fields[i].Value
		}
	}
	return ""
}

// Empty reports whether no field has a value.
func (p Profile) Empty() bool {
	return len(p.fields) == 0
}

// Summary renders the profile block of the prompt: one "- key: value" line
// per field, or NoProfileMessage.
func (p Profile) Summary() string {
	if p.Empty() {
		return NoProfileMessage
	}
	lines := make([]string, len(p.fields))
	for i, f := range p.fields {
		lines[i] = "- " + f.Key + ": " + f.Value
	}
	return strings.Join(lines, "\n")
}

// MarshalLogObject logs the fields in order.
func (p Profile) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	for _, f := range p.fields {
		enc.AddString(f.Key, f.Value)
	}
	return nil
}
