package validator

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// slotPattern matches 24h wall-clock times like "09:00" or "23:30".
var slotPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// IsTimeSlot reports whether s is a valid "HH:mm" wall-clock string.
func IsTimeSlot(s string) bool {
	return slotPattern.MatchString(s)
}

// RegisterCustom installs application validation rules on gin's binding engine.
func RegisterCustom() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return v.RegisterValidation("timeslot", func(fl validator.FieldLevel) bool {
		return IsTimeSlot(fl.Field().String())
	})
}
