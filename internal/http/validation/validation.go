package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type FieldErrors map[string]string

// FromBindError flattens a bind/validation error into field->message.
// dst is the bound struct pointer, needed to read its json tags.
func FromBindError(err error, dst any) FieldErrors {
	out := FieldErrors{}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			key := fieldKey(dst, fe.StructField())
			out[key] = messageForTag(fe.Tag(), fe.Param())
		}
		return out
	}

	// type mismatches and malformed bodies
	out["_"] = "request body is invalid"
	return out
}

func fieldKey(dst any, structField string) string {
	t := reflect.TypeOf(dst)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return strings.ToLower(structField)
	}

	f, ok := t.FieldByName(structField)
	if !ok {
		return strings.ToLower(structField)
	}
	tag := f.Tag.Get("json")
	if tag == "" {
		return strings.ToLower(structField)
	}
	if i := strings.Index(tag, ","); i >= 0 {
		tag = tag[:i]
	}
	if tag == "" || tag == "-" {
		return strings.ToLower(structField)
	}
	return tag
}

func messageForTag(tag, param string) string {
	switch tag {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "min":
		return "must be at least " + param + " characters"
	case "max":
		return "must be at most " + param + " characters"
	case "len":
		return "must be exactly " + param + " characters"
	case "gt":
		return "must be greater than " + param
	case "oneof":
		return "must be one of: " + param
	default:
		return "invalid value"
	}
}
