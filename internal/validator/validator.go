package validator

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// New creates a new validator instance with custom validations registered.
// This ensures consistent validation across the application and tests.
func New() *validator.Validate {
	v := validator.New()

	// Report JSON names in validation errors so details match the request body
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	// Register custom "notblank" validator - rejects whitespace-only strings
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		str, ok := fl.Field().Interface().(string)
		if !ok {
			return true // Not a string, let other validators handle it
		}
		return strings.TrimSpace(str) != ""
	})

	// Register "entityid" - opaque ids for tickets, children and families
	_ = v.RegisterValidation("entityid", func(fl validator.FieldLevel) bool {
		str, ok := fl.Field().Interface().(string)
		if !ok {
			return false
		}
		return idPattern.MatchString(str)
	})

	return v
}
