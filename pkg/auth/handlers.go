package auth

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// tokenLifetime is what clients are told; upstream tokens do not expire.
const tokenLifetime = 1800

// TokenExchanger trades a username and password for an upstream token.
type TokenExchanger interface {
	AccessToken(ctx context.Context, username, password string) (string, error)
}

type handler struct {
	exchanger TokenExchanger
}

// token exchanges the client's upstream username and password for an access
// token via xAuth.
func (h *handler) token(c echo.Context) error {
	ctx := c.Request().Context()
	log := logger.FromContext(ctx)

	params := TokenPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	log.Info("exchanging token", logger.Data{"username": params.Username})

	token, err := h.exchanger.AccessToken(ctx, params.Username, params.Password)
	if err != nil {
		return errors.WithStack(err)
	}

	return c.JSON(http.StatusOK, TokenResponse{
		AccessToken: token,
		ExpiresIn:   tokenLifetime,
	})
}
