package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func RegisterRoutes(e *echo.Echo, h *Handlers) {
	e.Use(middleware.Recover())

	// Routes
	e.POST("/dispatch", h.Dispatch)
	e.GET("/status", h.GetStatus)
	e.GET("/hc", HealthCheck)
}

// StartAPIServer blocks serving the API on portNumber.
func StartAPIServer(e *echo.Echo, h *Handlers, portNumber int) {
	RegisterRoutes(e, h)
	e.HideBanner = true

	if err := e.Start(fmt.Sprintf(":%d", portNumber)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		h.Logger.Fatal("shutting down the server", zap.Error(err))
	}
}
