package instapaper

import (
	"net/url"

	"github.com/pkg/errors"
)

// Credentials are a user's OAuth access token and secret. They travel between
// the reader and this service as the form-encoded string
// "oauth_token=...&oauth_token_secret=...".
type Credentials struct {
	Token  string
	Secret string
}

var ErrInvalidCredentials = errors.New("invalid upstream credentials")

func ParseCredentials(s string) (Credentials, error) {
	values, err := url.ParseQuery(s)
	if err != nil {
		return Credentials{}, errors.WithStack(ErrInvalidCredentials)
	}
	creds := Credentials{
		Token:  values.Get("oauth_token"),
		Secret: values.Get("oauth_token_secret"),
	}
	if creds.Token == "" || creds.Secret == "" {
		return Credentials{}, errors.WithStack(ErrInvalidCredentials)
	}
	return creds, nil
}

func (c Credentials) Encode() string {
	return url.Values{
		"oauth_token":        {c.Token},
		"oauth_token_secret": {c.Secret},
	}.Encode()
}
