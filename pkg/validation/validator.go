package validation

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is a singleton validator instance
var validate = validator.New()

// Struct checks the `validate` tags of v and returns one error per
// violated field
func Struct(v any) []error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return []error{err}
	}
	out := make([]error, 0, len(validationErrs))
	for _, e := range validationErrs {
		out = append(out, formatFieldError(e))
	}
	return out
}

// formatFieldError converts a validator error to a user-friendly form
func formatFieldError(e validator.FieldError) error {
	field := e.Namespace()
	param := e.Param()

	switch e.Tag() {
	case "required":
		return fmt.Errorf("%s: field is required", field)
	case "min", "gte":
		return fmt.Errorf("%s: must be at least %s", field, param)
	case "max", "lte":
		return fmt.Errorf("%s: must not exceed %s", field, param)
	case "gt":
		return fmt.Errorf("%s: must be greater than %s", field, param)
	case "oneof":
		return fmt.Errorf("%s: must be one of [%s]", field, param)
	case "url":
		return fmt.Errorf("%s: must be a url", field)
	default:
		return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
	}
}
