package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/grussorusso/digestledge/internal/digest"
	"github.com/grussorusso/digestledge/internal/dispatcher"
	"github.com/grussorusso/digestledge/internal/healthcheck"
	"github.com/grussorusso/digestledge/internal/objects"
	"github.com/grussorusso/digestledge/internal/provisioning"
	"github.com/grussorusso/digestledge/internal/scheduling"
	"github.com/grussorusso/digestledge/internal/sender"
	"github.com/grussorusso/digestledge/utils"
)

type stubExecutor struct {
	err      error
	received digest.Request
}

func (s *stubExecutor) Execute(r digest.Request) (digest.Response, error) {
	s.received = r
	if s.err != nil {
		return digest.Response{}, s.err
	}
	return digest.Response{ObjectKey: r.ObjectKey, Algorithm: r.Algorithm, Digest: "d"}, nil
}

func (s *stubExecutor) Status() dispatcher.Status {
	return dispatcher.Status{ServiceName: "digest-service", SizeThreshold: 1000}
}

func serve(exec Executor, method, path, body string) *httptest.ResponseRecorder {
	e := echo.New()
	RegisterRoutes(e, &Handlers{Executor: exec, Logger: zap.NewNop()})
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestDispatch(t *testing.T) {
	exec := &stubExecutor{}
	rec := serve(exec, http.MethodPost, "/dispatch", `{"objectKey":"k","algorithm":"MD5"}`)
	utils.AssertEquals(t, http.StatusOK, rec.Code)
	utils.AssertEquals(t, "k", exec.received.ObjectKey)

	var resp digest.Response
	utils.AssertNil(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	utils.AssertEquals(t, digest.Response{ObjectKey: "k", Algorithm: "MD5", Digest: "d"}, resp)
}

func TestDispatchMalformed(t *testing.T) {
	rec := serve(&stubExecutor{}, http.MethodPost, "/dispatch", `{"objectKey":`)
	utils.AssertEquals(t, http.StatusBadRequest, rec.Code)
}

func TestDispatchFailure(t *testing.T) {
	exec := &stubExecutor{err: fmt.Errorf("waiting: %w", healthcheck.ErrHealthCheckAborted)}
	rec := serve(exec, http.MethodPost, "/dispatch", `{"objectKey":"k"}`)
	utils.AssertEquals(t, http.StatusServiceUnavailable, rec.Code)
	utils.AssertTrue(t, strings.Contains(rec.Body.String(), "health check aborted"))
}

func TestStatus(t *testing.T) {
	rec := serve(&stubExecutor{}, http.MethodGet, "/status", "")
	utils.AssertEquals(t, http.StatusOK, rec.Code)
	var status dispatcher.Status
	utils.AssertNil(t, json.Unmarshal(rec.Body.Bytes(), &status))
	utils.AssertEquals(t, int64(1000), status.SizeThreshold)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{digest.ErrMissingObjectKey, http.StatusBadRequest},
		{&objects.RemoteLookupFailure{URL: "u", Status: 404}, http.StatusBadGateway},
		{&provisioning.ProvisioningFailure{Op: "run-instances"}, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: i-1", provisioning.ErrProvisioningTimeout), http.StatusServiceUnavailable},
		{fmt.Errorf("hc: %w", scheduling.ErrTimeout), http.StatusServiceUnavailable},
		{fmt.Errorf("%w (3): x", sender.ErrDeliveryExhausted), http.StatusBadGateway},
		{&sender.DeliveryFailure{URL: "u", Status: http.StatusBadGateway}, http.StatusBadGateway},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		utils.AssertEqualsMsg(t, c.status, StatusFor(c.err), c.err.Error())
	}
}
