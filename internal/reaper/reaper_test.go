package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/grussorusso/digestledge/internal/ledger"
	"github.com/grussorusso/digestledge/internal/metrics"
	"github.com/grussorusso/digestledge/internal/provisioning"
	"github.com/grussorusso/digestledge/internal/provisioning/ec2fake"
	"github.com/grussorusso/digestledge/utils"
)

func terminator(fake *ec2fake.EC2) Terminator {
	return provisioning.NewProvisioner(fake, provisioning.Template{}, provisioning.Tagging{}, nil)
}

func seed(t *testing.T, s ledger.Store, id string, terminateAfter time.Time) {
	utils.AssertNil(t, s.Put(context.Background(), ledger.Entry{InstanceID: id, TerminateAfter: terminateAfter}))
}

func TestSweepReapsOverdueEntries(t *testing.T) {
	store := ledger.NewMemoryStore()
	now := time.Now()
	seed(t, store, "i-old", now.Add(-time.Hour))
	seed(t, store, "i-busy", now.Add(-time.Hour))
	seed(t, store, "i-recent", now.Add(-time.Second))
	seed(t, store, "i-future", now.Add(time.Hour))

	fake := ec2fake.New("")
	r := New(store, terminator(fake), time.Minute, nil)
	r.InUse = func(id string) bool { return id == "i-busy" }

	before := testutil.ToFloat64(metrics.InstancesTerminated.WithLabelValues("reaped"))
	utils.AssertEquals(t, 1, r.Sweep(context.Background()))
	utils.AssertSliceEquals(t, []string{"i-old"}, fake.TerminatedIds())
	utils.AssertEquals(t, before+1, testutil.ToFloat64(metrics.InstancesTerminated.WithLabelValues("reaped")))

	entries, _ := store.List(context.Background())
	utils.AssertEquals(t, 3, len(entries))
}

func TestFailedReapKeepsEntry(t *testing.T) {
	store := ledger.NewMemoryStore()
	seed(t, store, "i-old", time.Now().Add(-time.Hour))

	fake := ec2fake.New("")
	fake.SetTerminateErr(ec2fake.ErrInjected)
	r := New(store, terminator(fake), time.Minute, nil)

	utils.AssertEquals(t, 0, r.Sweep(context.Background()))
	entries, _ := store.List(context.Background())
	utils.AssertEquals(t, 1, len(entries))
}

func TestStartSweepsImmediately(t *testing.T) {
	store := ledger.NewMemoryStore()
	seed(t, store, "i-old", time.Now().Add(-time.Hour))

	fake := ec2fake.New("")
	r := New(store, terminator(fake), time.Hour, nil)
	r.Start()
	utils.AssertEventually(t, time.Second, func() bool { return len(fake.TerminatedIds()) == 1 }, "not reaped")
	r.Stop()
}

func TestConcurrentSweepIsSkipped(t *testing.T) {
	r := New(ledger.NewMemoryStore(), terminator(ec2fake.New("")), time.Minute, nil)
	r.sweeping.Lock()
	utils.AssertEquals(t, 0, r.Sweep(context.Background()))
	r.sweeping.Unlock()
}
