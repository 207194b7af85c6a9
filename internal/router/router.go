package router

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/droid-bg/Outlook-MCP-Server/internal/handler"
)

func SetupRoutes(e *echo.Echo, toolHandler *handler.ToolHandler) {
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	// Tool discovery and invocation
	e.GET("/tools", toolHandler.ListTools)
	e.POST("/tools/:name", toolHandler.CallTool)
}
