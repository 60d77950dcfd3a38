package server

import (
	"github.com/lexgraph/lexgraph/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Graph query routes
	apiRoutes.POST("/graphs/:id/query", routes.QueryGraphHandler)

	// Community index maintenance
	apiRoutes.POST("/graphs/:id/reindex", routes.ReindexGraphHandler)
	apiRoutes.GET("/graphs/:id/communities", routes.GetCommunitiesHandler)
}
