package sender

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/grussorusso/digestledge/internal/digest"
	"github.com/grussorusso/digestledge/utils"
)

// digestServer answers with a digest after failing the first failFirst requests.
func digestServer(failFirst int32) (*httptest.Server, *atomic.Int32) {
	calls := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= failFirst {
			http.Error(w, "warming up", http.StatusBadGateway)
			return
		}
		var req digest.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(digest.Response{ObjectKey: req.ObjectKey, Algorithm: req.Algorithm, Digest: "abc123"})
	}))
	return srv, calls
}

var request = digest.Request{ObjectKey: "k", Algorithm: "SHA-256"}

func TestSend(t *testing.T) {
	srv, _ := digestServer(0)
	defer srv.Close()

	resp, err := NewSender(nil).Send(srv.URL, request)
	utils.AssertNil(t, err)
	utils.AssertEquals(t, digest.Response{ObjectKey: "k", Algorithm: "SHA-256", Digest: "abc123"}, resp)
}

func TestSendRejected(t *testing.T) {
	srv, _ := digestServer(1)
	defer srv.Close()

	_, err := NewSender(nil).Send(srv.URL, request)
	var failure *DeliveryFailure
	utils.AssertTrue(t, errors.As(err, &failure))
	utils.AssertEquals(t, http.StatusBadGateway, failure.Status)
	utils.AssertEquals(t, "warming up\n", failure.Body)
}

func TestSendWithRetrySucceedsOnSecondAttempt(t *testing.T) {
	srv, calls := digestServer(1)
	defer srv.Close()

	var failed []int
	resp, err := NewSender(nil).SendWithRetry(srv.URL, request, 3, time.Millisecond, func(attempt int, err error) {
		failed = append(failed, attempt)
	})
	utils.AssertNil(t, err)
	utils.AssertEquals(t, "abc123", resp.Digest)
	utils.AssertSliceEquals(t, []int{1}, failed)
	utils.AssertEquals(t, int32(2), calls.Load())
}

func TestSendWithRetryExhausted(t *testing.T) {
	srv, calls := digestServer(10)
	defer srv.Close()

	observed := 0
	_, err := NewSender(nil).SendWithRetry(srv.URL, request, 3, time.Millisecond, func(int, error) {
		observed++
	})
	utils.AssertErrorIs(t, err, ErrDeliveryExhausted)
	var failure *DeliveryFailure
	utils.AssertTrue(t, errors.As(err, &failure))
	utils.AssertEquals(t, 3, observed)
	utils.AssertEquals(t, int32(3), calls.Load())
}
