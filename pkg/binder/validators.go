package binder

import (
	"net/url"

	"github.com/go-playground/validator/v10"
)

const httpURL = "http_url"

// httpURLValidator accepts absolute http and https URLs with a host.
func httpURLValidator(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
