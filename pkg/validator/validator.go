package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxBodyBytes caps every JSON request body decoded by DecodeJSON.
const MaxBodyBytes = 1 << 20

// ErrEmptyBody is returned when a request carries no JSON document.
var ErrEmptyBody = errors.New("request body is empty")

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names so clients see the keys they actually sent.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks s against its `validate` tags. Tag failures come back as
// a *ValidationError.
func Validate(s any) error {
	err := validate.Struct(s)
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		return &ValidationError{Errors: fieldErrs}
	}
	return err
}

// ValidationError lists the fields that failed validation.
type ValidationError struct {
	Errors validator.ValidationErrors
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	for i, fe := range e.Errors {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "field '%s' %s", fe.Field(), describe(fe))
	}
	return b.String()
}

// Fields maps each failing JSON field to a readable message.
func (e *ValidationError) Fields() map[string]string {
	fields := make(map[string]string, len(e.Errors))
	for _, fe := range e.Errors {
		fields[fe.Field()] = describe(fe)
	}
	return fields
}

// tagMessages holds the client-facing text per tag. %s is the tag parameter.
var tagMessages = map[string]string{
	"required":   "is required",
	"email":      "must be a valid email address",
	"min":        "must be at least %s characters",
	"max":        "must be at most %s characters",
	"uuid":       "must be a valid UUID",
	"oneof":      "must be one of: %s",
	"printascii": "must contain printable ASCII characters only",
}

func describe(fe validator.FieldError) string {
	msg, ok := tagMessages[fe.Tag()]
	if !ok {
		return fmt.Sprintf("failed on '%s' validation", fe.Tag())
	}
	if strings.Contains(msg, "%s") {
		return fmt.Sprintf(msg, fe.Param())
	}
	return msg
}

// DecodeJSON reads at most MaxBodyBytes of JSON from the request body into
// dst, rejecting unknown fields and trailing data, then validates dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return fmt.Errorf("decode request body: %w", err)
	}
	if dec.More() {
		return errors.New("decode request body: unexpected data after JSON object")
	}
	return Validate(dst)
}
