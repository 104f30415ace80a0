package healthcheck

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/grussorusso/digestledge/internal/scheduling"
	"github.com/grussorusso/digestledge/utils"
)

func TestWaitUntilHealthy(t *testing.T) {
	var calls atomic.Int32
	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := NewChecker(nil).WaitUntilHealthy(srv.URL+"/ctx", 5*time.Millisecond, time.Second)
	utils.AssertNil(t, err)
	utils.AssertEquals(t, int32(3), calls.Load())
	utils.AssertEquals(t, "/ctx/hc", path.Load().(string))
}

func TestWaitUntilHealthyTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewChecker(nil).WaitUntilHealthy(srv.URL, 5*time.Millisecond, 40*time.Millisecond)
	utils.AssertErrorIs(t, err, scheduling.ErrTimeout)
}

// failingTransport fails every request and counts them.
type failingTransport struct {
	calls atomic.Int32
}

func (f *failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	f.calls.Add(1)
	return nil, http.ErrHandlerTimeout
}

func TestWaitUntilHealthyAbortsAfterThreeFailures(t *testing.T) {
	transport := &failingTransport{}
	c := NewChecker(nil)
	c.client = &http.Client{Transport: transport}

	start := time.Now()
	err := c.WaitUntilHealthy("http://10.255.255.1", 5*time.Millisecond, time.Hour)
	utils.AssertErrorIs(t, err, ErrHealthCheckAborted)
	utils.AssertEquals(t, int32(3), transport.calls.Load())
	utils.AssertTrue(t, time.Since(start) < time.Second)
}

// flakyTransport fails the requests whose ordinal is in fail, answering 503 otherwise.
type flakyTransport struct {
	calls atomic.Int32
	fail  map[int32]bool
}

func (f *flakyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	n := f.calls.Add(1)
	if f.fail[n] {
		return nil, http.ErrHandlerTimeout
	}
	return &http.Response{StatusCode: http.StatusServiceUnavailable, Body: http.NoBody, Request: r}, nil
}

func TestFailureCountResetsOnResponse(t *testing.T) {
	transport := &flakyTransport{fail: map[int32]bool{1: true, 2: true, 4: true, 5: true}}
	c := NewChecker(nil)
	c.client = &http.Client{Transport: transport}

	err := c.WaitUntilHealthy("http://instance", time.Millisecond, 100*time.Millisecond)
	utils.AssertErrorIs(t, err, scheduling.ErrTimeout)
	utils.AssertTrue(t, transport.calls.Load() > 5)
}
