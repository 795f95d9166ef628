package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/uptrace/bun"
	"github.com/wbip/wbip/pkg/auth"
	"github.com/wbip/wbip/pkg/binder"
	"github.com/wbip/wbip/pkg/bookmarks"
	"github.com/wbip/wbip/pkg/config"
	"github.com/wbip/wbip/pkg/downloadcache"
	"github.com/wbip/wbip/pkg/errcodes"
	"github.com/wbip/wbip/pkg/instapaper"
	"github.com/wbip/wbip/pkg/kosync"
	"github.com/wbip/wbip/pkg/testutils"
)

func New(cfg *config.Config, db *bun.DB, client *instapaper.Client, cache *downloadcache.Cache) (*http.Server, error) {
	e, err := newEcho(cfg, db, client, cache)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return srv, nil
}

func newEcho(cfg *config.Config, db *bun.DB, client *instapaper.Client, cache *downloadcache.Cache) (*echo.Echo, error) {
	e := echo.New()

	b, err := binder.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e.Binder = b

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.CORS())

	health.RegisterRoutes(e)

	auth.RegisterRoutes(e, client)
	bookmarks.RegisterRoutes(e, cfg, db, client, cache)
	kosync.RegisterRoutes(e, cfg, db)

	if cfg.Environment == "test" {
		testutils.RegisterRoutes(e, db, cfg.CacheDir)
	}

	echo.NotFoundHandler = notFoundHandler
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	return e, nil
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}
