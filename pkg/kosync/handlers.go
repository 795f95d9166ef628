package kosync

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

const (
	headerAuthUser = "x-auth-user"
	headerAuthKey  = "x-auth-key"
)

type handler struct {
	syncService *Service
}

func credentialsFromHeaders(c echo.Context) Credentials {
	return Credentials{
		Username: c.Request().Header.Get(headerAuthUser),
		Userkey:  c.Request().Header.Get(headerAuthKey),
	}
}

func (h *handler) register(c echo.Context) error {
	ctx := c.Request().Context()

	params := RegisterPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	if err := h.syncService.Register(ctx, params.Username, params.Password); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusCreated, RegisterResponse{Username: params.Username}))
}

func (h *handler) authorize(c echo.Context) error {
	if err := h.syncService.Authorize(c.Request().Context(), credentialsFromHeaders(c)); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(c.JSON(http.StatusOK, AuthorizeResponse{Authorized: "OK"}))
}

func (h *handler) push(c echo.Context) error {
	ctx := c.Request().Context()

	params := ProgressPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	res, err := h.syncService.PushProgress(ctx, credentialsFromHeaders(c), &params)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, res))
}

func (h *handler) pull(c echo.Context) error {
	ctx := c.Request().Context()

	doc, err := h.syncService.PullProgress(ctx, credentialsFromHeaders(c), c.Param("document"))
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, doc))
}
