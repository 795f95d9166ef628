package bookmarks

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
	"github.com/wbip/wbip/pkg/auth"
	"github.com/wbip/wbip/pkg/binder"
	"github.com/wbip/wbip/pkg/config"
)

// RegisterRoutes registers the entry routes under /bookmarks and under the
// wallabag paths clients expect (/api/entries...).
func RegisterRoutes(e *echo.Echo, cfg *config.Config, db *bun.DB, upstream Upstream, cache BookCache) {
	h := &handler{
		config:          cfg,
		bookmarkService: NewService(db),
		upstream:        upstream,
		cache:           cache,
	}

	g := e.Group("/bookmarks", auth.UpstreamToken, binder.Lenient)
	g.GET("", h.list)
	g.POST("", h.add)
	g.PATCH("/:id", h.archive, binder.AllowEmptyBody)
	g.DELETE("/:id", h.archive)
	g.POST("/:id/tags", h.tags, binder.AllowEmptyBody)
	g.GET("/:id/export", h.export)
	g.HEAD("/:id/export", h.export)

	w := e.Group("/api", auth.UpstreamToken, binder.Lenient)
	w.GET("/entries.json", h.list)
	w.POST("/entries.json", h.add)
	w.PATCH("/entries/:id", h.archive, binder.AllowEmptyBody)
	w.DELETE("/entries/:id", h.archive)
	w.POST("/entries/:id/tags.json", h.tags, binder.AllowEmptyBody)
	w.GET("/entries/:id/export.epub", h.export)
	w.HEAD("/entries/:id/export.epub", h.export)
}
