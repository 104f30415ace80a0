package scheduling

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/grussorusso/digestledge/internal/logging"
)

var ErrSchedulerStopped = errors.New("scheduler stopped")

// Scheduler runs deferred tasks after a delay. Tasks are not bound to the context of
// whoever scheduled them: they fire even if the scheduling request has long completed.
type Scheduler struct {
	mtx     sync.Mutex
	pending map[uint64]*Task
	nextId  uint64
	stopped bool
	running sync.WaitGroup
	logger  *zap.Logger
}

// Task is a handle to a scheduled action.
type Task struct {
	Name string
	Due  time.Time

	id    uint64
	run   func()
	timer *time.Timer
	s     *Scheduler
}

func NewScheduler(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		pending: make(map[uint64]*Task),
		logger:  logging.OrNop(logger),
	}
}

// Schedule runs task once, after delay.
func (s *Scheduler) Schedule(name string, task func(), delay time.Duration) (*Task, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.stopped {
		return nil, ErrSchedulerStopped
	}

	s.nextId++
	t := &Task{Name: name, Due: time.Now().Add(delay), id: s.nextId, run: task, s: s}
	s.pending[t.id] = t
	s.running.Add(1)
	t.timer = time.AfterFunc(delay, func() { s.fire(t) })

	s.logger.Debug("task scheduled", zap.String("task", name), zap.Duration("delay", delay))
	return t, nil
}

// Cancel prevents the task from running. It returns false if the task already ran
// or was cancelled before.
func (t *Task) Cancel() bool {
	s := t.s
	s.mtx.Lock()
	_, ok := s.pending[t.id]
	if ok {
		delete(s.pending, t.id)
		t.timer.Stop()
	}
	s.mtx.Unlock()

	if ok {
		s.running.Done()
	}
	return ok
}

// Pending returns the number of tasks not yet started.
func (s *Scheduler) Pending() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.pending)
}

// Shutdown stops accepting tasks. Pending tasks are run right away if runPending is
// set and dropped otherwise. It returns once every started task has completed.
func (s *Scheduler) Shutdown(runPending bool) {
	s.mtx.Lock()
	s.stopped = true
	tasks := make([]*Task, 0, len(s.pending))
	for id, t := range s.pending {
		tasks = append(tasks, t)
		delete(s.pending, id)
	}
	s.mtx.Unlock()

	for _, t := range tasks {
		t.timer.Stop()
		if runPending {
			go s.execute(t)
		} else {
			s.logger.Warn("dropping pending task", zap.String("task", t.Name), zap.Time("due", t.Due))
			s.running.Done()
		}
	}
	s.running.Wait()
}

func (s *Scheduler) fire(t *Task) {
	s.mtx.Lock()
	_, ok := s.pending[t.id]
	delete(s.pending, t.id)
	s.mtx.Unlock()

	// cancelled, or taken over by Shutdown
	if !ok {
		return
	}
	s.execute(t)
}

func (s *Scheduler) execute(t *Task) {
	defer s.running.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked", zap.String("task", t.Name), zap.Any("panic", r))
		}
	}()
	s.logger.Debug("running task", zap.String("task", t.Name))
	t.run()
}

// ScheduleAndWaitFor blocks polling probe every interval until it is ready or timeout elapses.
func ScheduleAndWaitFor[T any](s *Scheduler, probe func() (T, bool, error), interval, timeout time.Duration) (T, error) {
	s.mtx.Lock()
	stopped := s.stopped
	s.mtx.Unlock()
	if stopped {
		var zero T
		return zero, ErrSchedulerStopped
	}
	return PollUntil(probe, interval, timeout)
}
