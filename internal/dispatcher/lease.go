package dispatcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/grussorusso/digestledge/internal/ledger"
	"github.com/grussorusso/digestledge/internal/metrics"
	"github.com/grussorusso/digestledge/internal/provisioning"
)

const terminateTimeout = 30 * time.Second

// instanceLease owns the termination duty for one launched instance. release must be
// deferred right after acquire: it registers the delayed termination exactly once.
type instanceLease struct {
	d    *Dispatcher
	run  *dispatch
	inst *provisioning.Instance
	once sync.Once
}

func (d *Dispatcher) acquire(run *dispatch, inst *provisioning.Instance) *instanceLease {
	d.mtx.Lock()
	d.active[inst.ID] = run.id
	d.mtx.Unlock()

	// provisional deadline, moved forward by release
	deadline := time.Now().Add(d.conf.InstanceTimeout + d.conf.HealthTimeout + d.conf.TerminationGrace)
	d.record(run, inst, deadline)
	run.logger.Info("instance acquired", zap.String("instance_id", inst.ID))
	return &instanceLease{d: d, run: run, inst: inst}
}

func (d *Dispatcher) record(run *dispatch, inst *provisioning.Instance, deadline time.Time) {
	err := d.deps.Ledger.Put(d.ctx, ledger.Entry{
		InstanceID:     inst.ID,
		RequestID:      run.id,
		Owner:          d.conf.Owner,
		LaunchedAt:     inst.LaunchedAt,
		TerminateAfter: deadline,
	})
	if err != nil {
		run.logger.Error("could not record instance in the termination ledger",
			zap.String("instance_id", inst.ID), zap.Error(err))
	}
}

func (l *instanceLease) release() {
	l.once.Do(func() {
		d := l.d
		id := l.inst.ID
		grace := d.conf.TerminationGrace

		// from here on the duty belongs to this lease or, if preempted, was already served
		d.mtx.Lock()
		preempted := d.preempted[id]
		delete(d.preempted, id)
		delete(d.active, id)
		d.mtx.Unlock()
		l.inst.State = provisioning.TerminationRequested

		if preempted {
			l.run.transition(TerminationScheduled)
			l.run.logger.Info("instance already terminated at shutdown", zap.String("instance_id", id))
			return
		}

		d.record(l.run, l.inst, time.Now().Add(grace))
		_, err := d.deps.Scheduler.Schedule("terminate "+id, func() {
			d.terminate(id, "scheduled")
		}, grace)
		if err != nil {
			// the scheduler is shutting down: do not leave the instance behind
			l.run.logger.Warn("could not schedule termination, terminating now",
				zap.String("instance_id", id), zap.Error(err))
			d.terminate(id, "immediate")
		}

		l.run.transition(TerminationScheduled)
		l.run.logger.Info("instance termination scheduled", zap.String("instance_id", id), zap.Duration("delay", grace))
	})
}

// terminate asks the provider to terminate the instance and clears its ledger entry.
// If the request fails the entry is kept, so that the reaper retries later.
func (d *Dispatcher) terminate(id string, reason string) {
	ctx, cancel := context.WithTimeout(d.ctx, terminateTimeout)
	defer cancel()

	if err := d.deps.Provisioner.Terminate(ctx, id); err != nil {
		metrics.InstancesTerminated.WithLabelValues("failed").Inc()
		d.logger.Error("termination failed, left to the reaper", zap.String("instance_id", id), zap.Error(err))
		return
	}
	metrics.InstancesTerminated.WithLabelValues(reason).Inc()
	if err := d.deps.Ledger.Delete(ctx, id); err != nil {
		d.logger.Warn("could not clear ledger entry", zap.String("instance_id", id), zap.Error(err))
	}
}
