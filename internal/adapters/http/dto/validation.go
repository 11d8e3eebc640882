package dto

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Request decoding failures.
var (
	ErrValidation = errors.New("validation failed")
	ErrBinding    = errors.New("binding failed")
)

var validate = sync.OnceValue(func() *validator.Validate {
	v := validator.New()

	// Field errors carry the JSON name, or the form name on HTML posts.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" {
			name, _, _ = strings.Cut(f.Tag.Get("form"), ",")
		}

		if name == "-" {
			return ""
		}

		return name
	})

	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	return v
})

// Validator returns the shared validator with quotebot's tag names and rules.
func Validator() *validator.Validate { return validate() }

// Validate runs struct validation, wrapping failures in ErrValidation.
func Validate(v any) error {
	if err := validate().Struct(v); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	return nil
}

func bindThenValidate(bind func(any) error, v any) error {
	if err := bind(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBinding, err)
	}

	return Validate(v)
}

// BindAndValidate decodes a JSON body into v.
func BindAndValidate(c *gin.Context, v any) error { return bindThenValidate(c.ShouldBindJSON, v) }

// BindQueryAndValidate decodes the query string into v.
func BindQueryAndValidate(c *gin.Context, v any) error { return bindThenValidate(c.ShouldBindQuery, v) }

// BindFormAndValidate decodes an urlencoded or multipart form into v.
func BindFormAndValidate(c *gin.Context, v any) error { return bindThenValidate(c.ShouldBind, v) }

// ValidationErrors maps each failing field to a readable message. It is
// empty when err holds no field errors.
func ValidationErrors(err error) map[string]string {
	out := make(map[string]string)

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			out[fe.Field()] = validationMessage(fe)
		}
	}

	return out
}

// IsValidationError reports whether err holds field errors.
func IsValidationError(err error) bool {
	var fieldErrs validator.ValidationErrors
	return errors.As(err, &fieldErrs)
}

// {param} is replaced by the tag parameter.
var validationMessages = map[string]string{
	"required": "this field is required",
	"notblank": "must not be empty",
	"oneof":    "must be one of: {param}",
	"gte":      "must be greater than or equal to {param}",
	"lte":      "must be less than or equal to {param}",
}

func validationMessage(fe validator.FieldError) string {
	unit := ""
	if fe.Type().Kind() == reflect.String {
		unit = " characters"
	}

	switch fe.Tag() {
	case "min":
		return "must be at least " + fe.Param() + unit
	case "max":
		return "must be at most " + fe.Param() + unit
	}

	if msg, ok := validationMessages[fe.Tag()]; ok {
		return strings.ReplaceAll(msg, "{param}", fe.Param())
	}

	return "failed validation: " + fe.Tag()
}
