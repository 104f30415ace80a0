package sender

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/grussorusso/digestledge/internal/digest"
	"github.com/grussorusso/digestledge/internal/metrics"
	"github.com/grussorusso/digestledge/utils"
)

var ErrDeliveryExhausted = errors.New("delivery attempts exhausted")

// DeliveryFailure reports a single failed delivery.
type DeliveryFailure struct {
	URL    string
	Status int
	Body   string
	Err    error
}

func (e *DeliveryFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("delivery to %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("delivery to %s failed with status %d: %s", e.URL, e.Status, e.Body)
}

func (e *DeliveryFailure) Unwrap() error { return e.Err }

// FailureObserver is notified about every failed attempt of SendWithRetry.
type FailureObserver func(attempt int, err error)

// Sender posts digest requests to a target service.
type Sender struct {
	client *http.Client
}

func NewSender(client *http.Client) *Sender {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Minute}
	}
	return &Sender{client: client}
}

// Send delivers request to url once.
func (s *Sender) Send(url string, request digest.Request) (digest.Response, error) {
	var response digest.Response
	payload, err := json.Marshal(request)
	if err != nil {
		return response, &DeliveryFailure{URL: url, Err: err}
	}

	resp, err := s.client.Post(url, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		metrics.DeliveryAttempts.WithLabelValues("error").Inc()
		return response, &DeliveryFailure{URL: url, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		metrics.DeliveryAttempts.WithLabelValues("rejected").Inc()
		return response, &DeliveryFailure{URL: url, Status: resp.StatusCode, Body: utils.ReadBody(resp, 4096)}
	}

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err == nil {
		err = json.Unmarshal(body, &response)
	}
	if err != nil {
		metrics.DeliveryAttempts.WithLabelValues("error").Inc()
		return digest.Response{}, &DeliveryFailure{URL: url, Status: resp.StatusCode, Err: err}
	}
	metrics.DeliveryAttempts.WithLabelValues("ok").Inc()
	return response, nil
}

// SendWithRetry calls Send up to attempts times, waiting interval between attempts.
// onFailure, if set, is invoked once per failed attempt.
func (s *Sender) SendWithRetry(url string, request digest.Request, attempts int, interval time.Duration,
	onFailure FailureObserver) (digest.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		response, err := s.Send(url, request)
		if err == nil {
			return response, nil
		}
		lastErr = err
		if onFailure != nil {
			onFailure(attempt, err)
		}
		if attempt < attempts {
			time.Sleep(interval)
		}
	}
	return digest.Response{}, fmt.Errorf("%w (%d): %w", ErrDeliveryExhausted, attempts, lastErr)
}
