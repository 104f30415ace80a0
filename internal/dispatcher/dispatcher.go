package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/lithammer/shortuuid"
	"go.uber.org/zap"

	"github.com/grussorusso/digestledge/internal/config"
	"github.com/grussorusso/digestledge/internal/digest"
	"github.com/grussorusso/digestledge/internal/ledger"
	"github.com/grussorusso/digestledge/internal/logging"
	"github.com/grussorusso/digestledge/internal/metrics"
	"github.com/grussorusso/digestledge/internal/provisioning"
	"github.com/grussorusso/digestledge/internal/scheduling"
	"github.com/grussorusso/digestledge/internal/sender"
)

// Paths of the digest service, relative to its context URL
const (
	ServicePath = "/ds/digest"
	ObjectsPath = "/ds"
)

const (
	ROUTE_BASELINE    = "baseline"
	ROUTE_PROVISIONED = "provisioned"
)

type SizeProbe interface {
	FetchSize(objectKey string) (int64, error)
}

type Provisioner interface {
	Launch(ctx context.Context) (*provisioning.Instance, error)
	Tag(ctx context.Context, inst *provisioning.Instance) error
	AwaitRunning(ctx context.Context, inst *provisioning.Instance, interval, timeout time.Duration) (*provisioning.Instance, error)
	Terminate(ctx context.Context, id string) error
}

type HealthChecker interface {
	WaitUntilHealthy(baseUrl string, interval, timeout time.Duration) error
}

type WorkSender interface {
	Send(url string, request digest.Request) (digest.Response, error)
	SendWithRetry(url string, request digest.Request, attempts int, interval time.Duration,
		onFailure sender.FailureObserver) (digest.Response, error)
}

type DeferredScheduler interface {
	Schedule(name string, task func(), delay time.Duration) (*scheduling.Task, error)
	Pending() int
}

// Dependencies groups the collaborators of a Dispatcher.
type Dependencies struct {
	Sizes       SizeProbe
	Provisioner Provisioner
	Health      HealthChecker
	Sender      WorkSender
	Scheduler   DeferredScheduler
	Ledger      ledger.Store
	Logger      *zap.Logger
}

// Dispatcher routes digest requests either to the baseline service or to an ephemeral
// instance launched for the request, and guarantees that such an instance is
// terminated afterwards.
type Dispatcher struct {
	conf config.DispatcherConf
	deps Dependencies
	// requests do not cancel provider calls: a dispatch always runs to completion
	ctx    context.Context
	logger *zap.Logger

	mtx    sync.Mutex
	active map[string]string // instance id -> request id
	// ids terminated by TerminateActive while their dispatch was still running
	preempted map[string]bool

	// OnTransition, if set, is called on every state change. Used by tests.
	OnTransition func(requestID string, from, to State)
}

func New(conf config.DispatcherConf, deps Dependencies) *Dispatcher {
	if deps.Ledger == nil {
		deps.Ledger = ledger.NewMemoryStore()
	}
	deps.Logger = logging.OrNop(deps.Logger)
	return &Dispatcher{
		conf:   conf,
		deps:   deps,
		ctx:    context.Background(),
		logger: deps.Logger,
		active:    make(map[string]string),
		preempted: make(map[string]bool),
	}
}

// BaselineUrl is the work endpoint of the always-on service.
func (d *Dispatcher) BaselineUrl() string {
	return d.conf.ServiceContextUrl(d.conf.BaselineDomain) + ServicePath
}

// dispatch tracks one request through the state machine.
type dispatch struct {
	id      string
	request digest.Request
	state   State
	logger  *zap.Logger
	d       *Dispatcher
}

func (r *dispatch) transition(to State) {
	from := r.state
	if !canTransition(from, to) {
		r.logger.Error("invalid state transition", zap.Stringer("from", from), zap.Stringer("to", to))
	}
	r.state = to
	r.logger.Debug("state changed", zap.Stringer("from", from), zap.Stringer("state", to))
	if r.d.OnTransition != nil {
		r.d.OnTransition(r.id, from, to)
	}
}

// Execute serves a digest request. On failure the returned response is empty and the
// error is the first one encountered; any launched instance has its termination
// scheduled before Execute returns.
func (d *Dispatcher) Execute(request digest.Request) (digest.Response, error) {
	request, err := request.Validate()
	if err != nil {
		return digest.Response{}, err
	}

	id := shortuuid.New()
	run := &dispatch{
		id:      id,
		request: request,
		state:   Received,
		d:       d,
		logger:  d.logger.With(zap.String("request_id", id), zap.String("object_key", request.ObjectKey)),
	}

	route := "none"
	start := time.Now()
	defer func() {
		run.transition(Done)
		outcome := "ok"
		if err != nil {
			outcome = "error"
			run.logger.Error("dispatch failed", zap.String("route", route), zap.Error(err))
		}
		metrics.Dispatches.WithLabelValues(route, outcome).Inc()
		metrics.DispatchDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}()

	size, err := d.deps.Sizes.FetchSize(request.ObjectKey)
	if err != nil {
		return digest.Response{}, err
	}
	run.transition(SizeChecked)
	run.logger.Info("object size fetched", zap.Int64("size", size), zap.Int64("threshold", d.conf.SizeThreshold))

	var response digest.Response
	if size < d.conf.SizeThreshold {
		route = ROUTE_BASELINE
		response, err = d.executeBaseline(run)
	} else {
		route = ROUTE_PROVISIONED
		response, err = d.executeProvisioned(run)
	}
	if err != nil {
		return digest.Response{}, err
	}
	return response, nil
}

func (d *Dispatcher) executeBaseline(run *dispatch) (digest.Response, error) {
	run.transition(RoutedBaseline)
	run.transition(Delivering)
	return d.deps.Sender.Send(d.BaselineUrl(), run.request)
}

func (d *Dispatcher) executeProvisioned(run *dispatch) (digest.Response, error) {
	run.transition(RoutedProvisioned)
	run.transition(Launching)

	inst, err := d.deps.Provisioner.Launch(d.ctx)
	if err != nil {
		return digest.Response{}, err
	}
	lease := d.acquire(run, inst)
	defer lease.release()

	if err := d.deps.Provisioner.Tag(d.ctx, inst); err != nil {
		run.logger.Warn("tagging failed, going on", zap.String("instance_id", inst.ID), zap.Error(err))
	}

	run.transition(AwaitingReady)
	inst, err = d.deps.Provisioner.AwaitRunning(d.ctx, inst, d.conf.InstancePollInterval, d.conf.InstanceTimeout)
	if err != nil {
		return digest.Response{}, err
	}

	run.transition(AwaitingHealthy)
	contextUrl := d.conf.ServiceContextUrl(inst.Address)
	if err := d.deps.Health.WaitUntilHealthy(contextUrl, d.conf.HealthPollInterval, d.conf.HealthTimeout); err != nil {
		return digest.Response{}, err
	}

	run.transition(Delivering)
	serviceUrl := contextUrl + ServicePath
	return d.deps.Sender.SendWithRetry(serviceUrl, run.request, d.conf.DeliveryAttempts, d.conf.DeliveryInterval,
		func(attempt int, err error) {
			run.logger.Warn("delivery attempt failed", zap.String("url", serviceUrl),
				zap.Int("attempt", attempt), zap.Int("attempts", d.conf.DeliveryAttempts), zap.Error(err))
		})
}

// InUse reports whether the instance still serves an ongoing dispatch.
func (d *Dispatcher) InUse(instanceID string) bool {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	_, ok := d.active[instanceID]
	return ok
}

// TerminateActive immediately terminates every instance still serving a dispatch and
// returns how many it asked to terminate. The dispatches themselves keep running and
// will fail against the terminated instance; their leases then skip the deferred
// termination. Meant for process shutdown, before the scheduler is stopped.
func (d *Dispatcher) TerminateActive() int {
	d.mtx.Lock()
	ids := make([]string, 0, len(d.active))
	for id := range d.active {
		ids = append(ids, id)
		d.preempted[id] = true
	}
	d.mtx.Unlock()

	for _, id := range ids {
		d.logger.Warn("terminating in-flight instance", zap.String("instance_id", id), zap.String("request_id", d.requestOf(id)))
		d.terminate(id, "shutdown")
	}
	return len(ids)
}

func (d *Dispatcher) requestOf(instanceID string) string {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return d.active[instanceID]
}

type Status struct {
	ServiceName         string `json:"serviceName"`
	SizeThreshold       int64  `json:"sizeThreshold"`
	BaselineUrl         string `json:"baselineUrl"`
	ActiveInstances     int    `json:"activeInstances"`
	PendingTerminations int    `json:"pendingTerminations"`
}

func (d *Dispatcher) Status() Status {
	d.mtx.Lock()
	active := len(d.active)
	d.mtx.Unlock()
	return Status{
		ServiceName:         d.conf.ServiceName,
		SizeThreshold:       d.conf.SizeThreshold,
		BaselineUrl:         d.BaselineUrl(),
		ActiveInstances:     active,
		PendingTerminations: d.deps.Scheduler.Pending(),
	}
}
