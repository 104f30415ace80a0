package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/grussorusso/digestledge/internal/digest"
	"github.com/grussorusso/digestledge/internal/dispatcher"
	"github.com/grussorusso/digestledge/internal/healthcheck"
	"github.com/grussorusso/digestledge/internal/objects"
	"github.com/grussorusso/digestledge/internal/provisioning"
	"github.com/grussorusso/digestledge/internal/scheduling"
	"github.com/grussorusso/digestledge/internal/sender"
)

// Executor serves digest requests.
type Executor interface {
	Execute(request digest.Request) (digest.Response, error)
	Status() dispatcher.Status
}

type Handlers struct {
	Executor Executor
	Logger   *zap.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

// Dispatch handles a digest request.
func (h *Handlers) Dispatch(c echo.Context) error {
	var request digest.Request
	err := json.NewDecoder(c.Request().Body).Decode(&request)
	if err != nil && err != io.EOF {
		h.Logger.Info("Could not parse request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, errorResponse{"could not parse request"})
	}

	response, err := h.Executor.Execute(request)
	if err != nil {
		return c.JSON(StatusFor(err), errorResponse{err.Error()})
	}
	return c.JSON(http.StatusOK, response)
}

// GetStatus returns the dispatcher status.
func (h *Handlers) GetStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Executor.Status())
}

func HealthCheck(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// StatusFor maps dispatch failures to HTTP status codes.
func StatusFor(err error) int {
	var lookup *objects.RemoteLookupFailure
	var provisioningFailure *provisioning.ProvisioningFailure
	var delivery *sender.DeliveryFailure
	switch {
	case errors.Is(err, digest.ErrMissingObjectKey):
		return http.StatusBadRequest
	case errors.As(err, &lookup):
		return http.StatusBadGateway
	case errors.Is(err, provisioning.ErrProvisioningTimeout),
		errors.As(err, &provisioningFailure),
		errors.Is(err, healthcheck.ErrHealthCheckAborted),
		errors.Is(err, scheduling.ErrTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, sender.ErrDeliveryExhausted), errors.As(err, &delivery):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
