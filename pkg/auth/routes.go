package auth

import (
	"github.com/labstack/echo/v4"
	"github.com/wbip/wbip/pkg/binder"
)

// RegisterRoutes registers the token endpoint.
func RegisterRoutes(e *echo.Echo, exchanger TokenExchanger) {
	h := &handler{exchanger: exchanger}

	e.POST("/oauth/v2/token", h.token, binder.Lenient)
}
