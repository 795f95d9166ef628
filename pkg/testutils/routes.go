// Package testutils provides test-only API endpoints.
// These routes are only registered when ENVIRONMENT=test.
package testutils

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

// RegisterRoutes registers test-only routes.
// These endpoints should ONLY be registered in test environments.
func RegisterRoutes(e *echo.Echo, db *bun.DB, cacheDir string) {
	h := &handler{db: db, cacheDir: cacheDir}

	test := e.Group("/test")
	test.POST("/bookmarks", h.createBookmark)
	test.DELETE("/data", h.deleteAllData)
	test.DELETE("/cache", h.clearCache)
}
