// Package validation wraps go-playground/validator so failures come back as
// apperr ValidationErrors naming the JSON field.
package validation

import (
	"reflect"
	"strings"

	"github.com/farellandr/cashback/internal/apperr"
	"github.com/go-playground/validator/v10"
)

var validate = New()

func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(JSONFieldName)
	return v
}

// JSONFieldName reports a struct field by its JSON name.
func JSONFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}

func Struct(s interface{}) error {
	return FromValidator(validate.Struct(s))
}

// FromValidator turns the first validator failure into a ValidationError.
// Other errors, such as JSON decoding failures, keep an empty field.
func FromValidator(err error) error {
	if err == nil {
		return nil
	}
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		fe := errs[0]
		return apperr.Validation(fe.Field(), describe(fe))
	}
	return apperr.Validation("", "malformed request body")
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "url":
		return "must be a URL"
	case "email":
		return "must be an email address"
	}
	return "is invalid (" + fe.Tag() + ")"
}
