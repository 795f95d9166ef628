package auth

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/wbip/wbip/pkg/errcodes"
	"github.com/wbip/wbip/pkg/instapaper"
)

type contextKey string

const contextKeyCredentials contextKey = "upstream_credentials"

const bearerPrefix = "bearer "

// UpstreamToken requires an "Authorization: Bearer <token>" header whose token
// is the string handed out by the token endpoint, and stores the parsed
// upstream credentials in the request context.
func UpstreamToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
			return errcodes.Unauthorized()
		}

		creds, err := instapaper.ParseCredentials(strings.TrimSpace(header[len(bearerPrefix):]))
		if err != nil {
			return errcodes.Unauthorized()
		}

		ctx := context.WithValue(c.Request().Context(), contextKeyCredentials, creds)
		c.SetRequest(c.Request().WithContext(ctx))

		return next(c)
	}
}

// CredentialsFromContext returns the upstream credentials stored by
// UpstreamToken.
func CredentialsFromContext(ctx context.Context) (instapaper.Credentials, bool) {
	creds, ok := ctx.Value(contextKeyCredentials).(instapaper.Credentials)
	return creds, ok
}
