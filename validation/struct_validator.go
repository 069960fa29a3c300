package validation

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/kbukum/sonify/errors"
)

var (
	validate *validator.Validate
	once     sync.Once

	rulesMu sync.Mutex
	rules   = map[string]rule{}
)

type rule struct {
	check   func(string) bool
	message string
}

// RegisterRule adds a string validation tag. message is used in field errors.
// Rules registered after the first Validate call are applied as well.
func RegisterRule(tag, message string, check func(string) bool) {
	rulesMu.Lock()
	rules[tag] = rule{check: check, message: message}
	rulesMu.Unlock()

	if validate != nil {
		registerRule(validate, tag, check)
	}
}

func registerRule(v *validator.Validate, tag string, check func(string) bool) {
	_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return check(fl.Field().String())
	})
}

// getValidator returns the singleton validator instance.
func getValidator() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		// Field names in errors follow the mapstructure/json tag so they match
		// the configuration keys users actually write.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, key := range []string{"mapstructure", "json"} {
				name := strings.SplitN(fld.Tag.Get(key), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return toSnakeCase(fld.Name)
		})

		rulesMu.Lock()
		for tag, r := range rules {
			registerRule(v, tag, r.check)
		}
		rulesMu.Unlock()
		validate = v
	})
	return validate
}

// Validate validates a struct using struct tags and returns an INVALID_INPUT
// AppError listing every failing field.
func Validate(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.Validation("validation failed").WithCause(err)
	}

	fieldErrors := make([]FieldError, 0, len(validationErrors))
	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		field := fieldPath(e.Namespace())
		message := formatValidationError(e)
		fieldErrors = append(fieldErrors, FieldError{Field: field, Message: message})
		messages = append(messages, field+": "+message)
	}

	appErr := errors.Validation(strings.Join(messages, "; "))
	appErr.Details = map[string]any{
		"fields": fieldErrors,
	}
	return appErr
}

// fieldPath drops the root struct name: "Config.cache.dir" becomes "cache.dir".
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

// formatValidationError creates a human-readable error message.
func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return "must be at least " + e.Param()
	case "max", "lte":
		return "must be at most " + e.Param()
	case "url":
		return "must be a valid URL"
	case "hostname_port":
		return "must be host:port"
	case "oneof":
		return "must be one of: " + e.Param()
	case "required_if":
		return "is required when " + e.Param()
	}

	rulesMu.Lock()
	r, ok := rules[e.Tag()]
	rulesMu.Unlock()
	if ok {
		return r.message
	}
	return "is invalid"
}

// toSnakeCase converts a field name to snake_case.
func toSnakeCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result.WriteRune('_')
		}
		if r >= 'A' && r <= 'Z' {
			result.WriteRune(r + 32)
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
