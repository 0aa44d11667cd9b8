package middleware

import (
	"reflect"
	"strings"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidators installs domain validators on gin's binding engine:
// "clock" for HH:MM times of day and "dateonly" for YYYY-MM-DD dates.
// Validation errors report the json field name, not the Go one.
func RegisterValidators() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}

	must(v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := time.Parse("15:04", fl.Field().String())
		return err == nil
	}))
	must(v.RegisterValidation("dateonly", func(fl validator.FieldLevel) bool {
		_, err := time.Parse("2006-01-02", fl.Field().String())
		return err == nil
	}))

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
