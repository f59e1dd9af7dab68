package handlers

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

var tagMessages = map[string]string{
	"required":  "%s is required",
	"email":     "%s must be a valid email address",
	"e164":      "%s must be an E.164 phone number",
	"latitude":  "%s must be a valid latitude (-90 to 90)",
	"longitude": "%s must be a valid longitude (-180 to 180)",
}

var paramMessages = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"max":   "%s must be at most %s",
}

// validateStruct returns one readable line per failed field, or "".
func validateStruct(v any) string {
	err := getValidator().Struct(v)
	if err == nil {
		return ""
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, translate(fe))
	}
	return strings.Join(msgs, "; ")
}

func translate(fe validator.FieldError) string {
	if tpl, ok := tagMessages[fe.Tag()]; ok {
		return fmt.Sprintf(tpl, fe.Field())
	}
	if tpl, ok := paramMessages[fe.Tag()]; ok {
		return fmt.Sprintf(tpl, fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
}
