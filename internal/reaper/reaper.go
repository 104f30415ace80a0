// Package reaper terminates instances whose termination is overdue, such as those
// launched by a dispatcher process that died before terminating them.
package reaper

import (
	"context"
	"time"

	"github.com/LK4D4/trylock"
	"go.uber.org/zap"

	"github.com/grussorusso/digestledge/internal/ledger"
	"github.com/grussorusso/digestledge/internal/logging"
	"github.com/grussorusso/digestledge/internal/metrics"
)

type Terminator interface {
	Terminate(ctx context.Context, id string) error
}

type Reaper struct {
	Interval time.Duration
	// entries are reaped only once overdue by more than Slack, leaving the
	// in-process scheduled termination a chance to run first
	Slack time.Duration
	// InUse, if set, protects instances still serving a dispatch of this process
	InUse func(instanceID string) bool

	store      ledger.Store
	terminator Terminator
	logger     *zap.Logger
	sweeping   trylock.Mutex
	stop       chan bool
	done       chan bool
}

func New(store ledger.Store, terminator Terminator, interval time.Duration, logger *zap.Logger) *Reaper {
	return &Reaper{
		Interval:   interval,
		Slack:      interval,
		store:      store,
		terminator: terminator,
		logger:     logging.OrNop(logger),
		stop:       make(chan bool),
		done:       make(chan bool),
	}
}

// Start sweeps once right away and then every Interval, until Stop is called.
func (r *Reaper) Start() {
	go r.run()
}

func (r *Reaper) run() {
	defer close(r.done)
	r.Sweep(context.Background())

	ticker := time.NewTicker(r.Interval)
	for {
		select {
		case <-ticker.C:
			r.Sweep(context.Background())
		case <-r.stop:
			ticker.Stop()
			return
		}
	}
}

func (r *Reaper) Stop() {
	close(r.stop)
	<-r.done
}

// Sweep terminates every overdue ledger entry and returns how many were reaped. A
// sweep already in progress makes it return immediately.
func (r *Reaper) Sweep(ctx context.Context) int {
	if !r.sweeping.TryLock() {
		r.logger.Debug("sweep already in progress")
		return 0
	}
	defer r.sweeping.Unlock()

	entries, err := r.store.List(ctx)
	if err != nil {
		r.logger.Error("could not list the termination ledger", zap.Error(err))
		return 0
	}

	now := time.Now()
	reaped := 0
	for _, e := range entries {
		if !e.Overdue(now.Add(-r.Slack)) {
			continue
		}
		if r.InUse != nil && r.InUse(e.InstanceID) {
			continue
		}
		if err := r.terminator.Terminate(ctx, e.InstanceID); err != nil {
			r.logger.Error("reaping failed", zap.String("instance_id", e.InstanceID), zap.Error(err))
			continue
		}
		metrics.InstancesTerminated.WithLabelValues("reaped").Inc()
		if err := r.store.Delete(ctx, e.InstanceID); err != nil {
			r.logger.Warn("could not clear ledger entry", zap.String("instance_id", e.InstanceID), zap.Error(err))
		}
		r.logger.Info("overdue instance reaped", zap.String("instance_id", e.InstanceID),
			zap.String("request_id", e.RequestID), zap.Time("terminate_after", e.TerminateAfter))
		reaped++
	}
	return reaped
}
