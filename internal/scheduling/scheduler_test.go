package scheduling

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/grussorusso/digestledge/utils"
)

func TestScheduleRunsAfterDelay(t *testing.T) {
	s := NewScheduler(nil)
	var ran atomic.Int32
	start := time.Now()
	var firedAt atomic.Int64

	_, err := s.Schedule("t1", func() {
		firedAt.Store(int64(time.Since(start)))
		ran.Add(1)
	}, 30*time.Millisecond)
	utils.AssertNil(t, err)
	utils.AssertEquals(t, 1, s.Pending())

	utils.AssertEventually(t, time.Second, func() bool { return ran.Load() == 1 }, "task did not run")
	utils.AssertTrue(t, time.Duration(firedAt.Load()) >= 30*time.Millisecond)
	utils.AssertEquals(t, 0, s.Pending())
}

func TestCancelPreventsRun(t *testing.T) {
	s := NewScheduler(nil)
	var ran atomic.Bool
	task, err := s.Schedule("t1", func() { ran.Store(true) }, 20*time.Millisecond)
	utils.AssertNil(t, err)

	utils.AssertTrue(t, task.Cancel())
	utils.AssertFalse(t, task.Cancel())
	time.Sleep(50 * time.Millisecond)
	utils.AssertFalse(t, ran.Load())
	s.Shutdown(false)
}

func TestShutdownRunsPendingTasks(t *testing.T) {
	s := NewScheduler(nil)
	var ran atomic.Int32
	for i := 0; i < 3; i++ {
		_, err := s.Schedule("late", func() { ran.Add(1) }, time.Hour)
		utils.AssertNil(t, err)
	}

	s.Shutdown(true)
	utils.AssertEquals(t, int32(3), ran.Load())

	_, err := s.Schedule("after", func() {}, time.Millisecond)
	utils.AssertErrorIs(t, err, ErrSchedulerStopped)
}

func TestShutdownDropsPendingTasks(t *testing.T) {
	s := NewScheduler(nil)
	var ran atomic.Bool
	_, err := s.Schedule("late", func() { ran.Store(true) }, time.Hour)
	utils.AssertNil(t, err)

	s.Shutdown(false)
	utils.AssertFalse(t, ran.Load())
	utils.AssertEquals(t, 0, s.Pending())
}

func TestPanickingTaskDoesNotBlockShutdown(t *testing.T) {
	s := NewScheduler(nil)
	_, err := s.Schedule("boom", func() { panic("boom") }, time.Millisecond)
	utils.AssertNil(t, err)
	time.Sleep(20 * time.Millisecond)
	s.Shutdown(true)
}

func TestScheduleAndWaitForRefusesWhenStopped(t *testing.T) {
	s := NewScheduler(nil)
	v, err := ScheduleAndWaitFor(s, func() (int, bool, error) { return 7, true, nil }, time.Millisecond, time.Second)
	utils.AssertNil(t, err)
	utils.AssertEquals(t, 7, v)

	s.Shutdown(false)
	_, err = ScheduleAndWaitFor(s, func() (int, bool, error) { return 7, true, nil }, time.Millisecond, time.Second)
	utils.AssertErrorIs(t, err, ErrSchedulerStopped)
}
