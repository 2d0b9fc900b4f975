// Package validation validates decoded request bodies with struct tags and
// reports failures as field-level validation errors.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/wangmul/emotion-tracker/internal/errors"
)

// Validator wraps a configured go-playground validator.
type Validator struct {
	validate *validator.Validate
}

var (
	instance *Validator
	once     sync.Once
)

// GetValidator returns the shared validator instance.
func GetValidator() *Validator {
	once.Do(func() {
		instance = NewValidator()
	})
	return instance
}

// NewValidator creates a validator reporting fields by their JSON names.
func NewValidator() *Validator {
	v := &Validator{validate: validator.New()}

	v.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// Validate checks struct tags and returns a VALIDATION error listing every
// failing field.
func (v *Validator) Validate(i interface{}) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.Internal("validation could not run", err)
	}
	fields := make([]apperrors.FieldError, 0, len(verrs))
	for _, e := range verrs {
		fields = append(fields, apperrors.FieldError{
			Field:   fieldPath(e),
			Message: message(e.Tag(), e.Param()),
		})
	}
	return apperrors.ValidationFields(fields)
}

// fieldPath drops the top-level struct name from the namespace so nested
// and indexed fields read like "mustDoTasks[1]".
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return e.Field()
}

func message(tag, param string) string {
	switch tag {
	case "required", "notblank":
		return "This field is required"
	case "email":
		return "Must be a valid email address"
	case "min":
		return fmt.Sprintf("Must be at least %s characters", param)
	case "max":
		return fmt.Sprintf("Must be at most %s", param)
	case "oneof":
		return fmt.Sprintf("Must be one of: %s", strings.ReplaceAll(param, " ", ", "))
	default:
		return fmt.Sprintf("Failed %s validation", tag)
	}
}
