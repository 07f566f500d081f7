package protocol

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks `validate` struct tags on payloads and request bodies.
func Validate(v any) error {
	return validate.Struct(v)
}
