package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/agehcx/hiking-app-sub000/internal/apperrors"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Struct validates v against its `validate` tags and returns a typed
// Validation error naming the first failing field.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperrors.Validation("Validation Error").Wrap(err)
	}
	first := fieldErrs[0]
	return apperrors.Validation(Message(first)).WithField(fieldPath(first)).Wrap(err)
}

// Var validates a single value against a tag expression.
func Var(field string, value any, tag string) error {
	if err := validate.Var(value, tag); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return apperrors.Validation(describe(field, fieldErrs[0])).WithField(field).Wrap(err)
		}
		return apperrors.Validation("Validation Error").WithField(field).Wrap(err)
	}
	return nil
}

// Message renders a human readable message for a field error.
func Message(e validator.FieldError) string {
	return describe(fieldPath(e), e)
}

func describe(field string, e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return "Please provide a valid email address"
	case "min":
		if e.Kind() == reflect.String {
			return field + " must be at least " + e.Param() + " characters long"
		}
		return field + " must be at least " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return field + " must be at most " + e.Param() + " characters long"
		}
		return field + " must be at most " + e.Param()
	case "gte":
		return field + " must be greater than or equal to " + e.Param()
	case "lte":
		return field + " must be less than or equal to " + e.Param()
	case "gtefield":
		return field + " must not be before " + e.Param()
	case "oneof":
		return field + " must be one of: " + e.Param()
	default:
		return field + " validation failed: " + e.Tag()
	}
}

// fieldPath strips the root struct name from the namespace:
// "TripInput.trail.waypoints[0].type" becomes "trail.waypoints[0].type".
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return e.Field()
}
