package kosync

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
	"github.com/wbip/wbip/pkg/binder"
	"github.com/wbip/wbip/pkg/config"
)

// RegisterRoutes registers the KOReader sync endpoints.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, db *bun.DB) {
	h := &handler{syncService: NewService(db, cfg.AllowRegistration)}

	e.POST("/users/create", h.register, binder.Lenient)
	e.GET("/users/auth", h.authorize)
	e.PUT("/syncs/progress", h.push, binder.Lenient)
	e.GET("/syncs/progress/:document", h.pull)
}
