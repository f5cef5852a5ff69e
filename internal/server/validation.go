package server

import (
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/estate/internal/reference"
)

// registerValidators adds the iso_country and iso_currency tags to gin's
// validator. Both accept only codes known to the registry.
func registerValidators(registry *reference.Registry) error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(field.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return field.Name
	})

	if err := v.RegisterValidation("iso_country", func(fl validator.FieldLevel) bool {
		return registry.IsCountry(fl.Field().String())
	}); err != nil {
		return err
	}
	return v.RegisterValidation("iso_currency", func(fl validator.FieldLevel) bool {
		return registry.IsCurrency(fl.Field().String())
	})
}
