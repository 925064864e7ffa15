// Package validator
package validator

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Validator interface {
	Validate(data any) map[string]string
}

type DefaultValidator struct {
	validate *validator.Validate
}

func NewValidator() Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, key := range []string{"yaml", "json"} {
			tag := f.Tag.Get(key)
			if tag != "" && tag != "-" {
				return strings.Split(tag, ",")[0]
			}
		}
		return strings.ToLower(f.Name)
	})

	return &DefaultValidator{validate: v}
}

func (v *DefaultValidator) Validate(data any) map[string]string {
	err := v.validate.Struct(data)
	if err == nil {
		return map[string]string{}
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{
			"_error": "invalid payload",
		}
	}

	errors := make(map[string]string)
	for _, e := range validationErrors {
		errors[e.Field()] = v.messageFor(e)
	}

	return errors
}

// Summary renders a Validate result as a single deterministic line.
func Summary(errs map[string]string) string {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, errs[k])
	}

	return strings.Join(parts, "; ")
}

func (v *DefaultValidator) messageFor(e validator.FieldError) string {
	messages := map[string]func(validator.FieldError) string{
		"required": func(e validator.FieldError) string {
			return fmt.Sprintf("%s is required", e.Field())
		},
		"oneof": func(e validator.FieldError) string {
			return fmt.Sprintf("%s must be one of [%s], got %v", e.Field(), e.Param(), e.Value())
		},
		"gt": func(e validator.FieldError) string {
			return fmt.Sprintf("%s must be greater than %s", e.Field(), e.Param())
		},
		"gte": func(e validator.FieldError) string {
			return fmt.Sprintf("%s must be at least %s", e.Field(), e.Param())
		},
		"lte": func(e validator.FieldError) string {
			return fmt.Sprintf("%s must be at most %s", e.Field(), e.Param())
		},
		"min": func(e validator.FieldError) string {
			return fmt.Sprintf("%s must have at least %s entries", e.Field(), e.Param())
		},
		"datetime": func(e validator.FieldError) string {
			return fmt.Sprintf("%s must be a timestamp like %s", e.Field(), e.Param())
		},
	}

	if msg, ok := messages[e.Tag()]; ok {
		return msg(e)
	}

	return fmt.Sprintf("%s is invalid", e.Field())
}
