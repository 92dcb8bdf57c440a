package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

var fieldMessages = map[string]string{
	"required": "The field '%s' is required.",
	"email":    "The field '%s' must be a valid email address.",
	"min":      "The field '%s' must be at least %s characters long.",
	"max":      "The field '%s' must be no longer than %s characters.",
}

// validateStruct validates s (a pointer to a request DTO) and returns JSON field names mapped to messages.
func validateStruct(s any) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"body": err.Error()}
	}
	structType := reflect.TypeOf(s).Elem()
	out := make(map[string]string, len(verrs))
	for _, e := range verrs {
		name := e.StructField()
		if field, ok := structType.FieldByName(e.StructField()); ok {
			if tag := field.Tag.Get("json"); tag != "" {
				name = strings.Split(tag, ",")[0]
			}
		}
		msg, ok := fieldMessages[e.Tag()]
		switch {
		case !ok:
			out[name] = fmt.Sprintf("Field '%s' is invalid: %s", name, e.Tag())
		case strings.Count(msg, "%s") == 2:
			out[name] = fmt.Sprintf(msg, name, e.Param())
		default:
			out[name] = fmt.Sprintf(msg, name)
		}
	}
	return out
}
