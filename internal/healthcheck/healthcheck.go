package healthcheck

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/grussorusso/digestledge/internal/logging"
	"github.com/grussorusso/digestledge/internal/metrics"
	"github.com/grussorusso/digestledge/internal/scheduling"
)

const Path = "/hc"

// Probe failures (not bad statuses) tolerated in a row before giving up.
const MaxConsecutiveFailures = 2

const ConnectTimeout = 2 * time.Second

var ErrHealthCheckAborted = errors.New("health check aborted")

type Checker struct {
	client *http.Client
	logger *zap.Logger
}

func NewChecker(logger *zap.Logger) *Checker {
	transport := &http.Transport{
		DialContext:       (&net.Dialer{Timeout: ConnectTimeout}).DialContext,
		DisableKeepAlives: true,
	}
	return &Checker{
		client: &http.Client{Transport: transport, Timeout: 10 * time.Second},
		logger: logging.OrNop(logger),
	}
}

// WaitUntilHealthy polls {baseUrl}/hc until it answers 200 OK. It fails with
// scheduling.ErrTimeout once timeout has elapsed, or with ErrHealthCheckAborted as
// soon as more than MaxConsecutiveFailures probes in a row could not get a response.
func (c *Checker) WaitUntilHealthy(baseUrl string, interval, timeout time.Duration) error {
	healthCheckUrl := baseUrl + Path
	failures := 0

	_, err := scheduling.PollUntil(func() (int, bool, error) {
		rc, err := c.probe(healthCheckUrl)
		if err != nil {
			failures++
			metrics.HealthCheckAttempts.WithLabelValues("error").Inc()
			c.logger.Error("health check attempt failed", zap.String("url", healthCheckUrl),
				zap.Int("attempt", failures), zap.Error(err))
			if failures > MaxConsecutiveFailures {
				return 0, false, fmt.Errorf("%w: %s: %d consecutive failures: %w",
					ErrHealthCheckAborted, healthCheckUrl, failures, err)
			}
			return 0, false, nil
		}
		failures = 0

		c.logger.Info("health check response received", zap.String("url", healthCheckUrl), zap.Int("status", rc))
		if rc != http.StatusOK {
			metrics.HealthCheckAttempts.WithLabelValues("unhealthy").Inc()
			return rc, false, nil
		}
		metrics.HealthCheckAttempts.WithLabelValues("healthy").Inc()
		return rc, true, nil
	}, interval, timeout)
	return err
}

func (c *Checker) probe(url string) (int, error) {
	resp, err := c.client.Get(url)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
