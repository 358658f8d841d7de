package config

import (
	"net/url"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers the validation tags config uses.
func RegisterCustomValidators(v *validator.Validate) error {
	return v.RegisterValidation("redis_url", validateRedisURL)
}

// validateRedisURL accepts redis:// and rediss:// URLs with a host.
func validateRedisURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil {
		return false
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return false
	}
	return u.Host != ""
}
