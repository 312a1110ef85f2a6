package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/benvon/medvax-chat/internal/models"
)

type fakeMaintainer struct {
	mu         sync.Mutex
	passes     atomic.Int32
	cleaned    int64
	stats      models.SessionStatistics
	cleanupErr error
}

func (f *fakeMaintainer) CleanupExpiredSessions(context.Context) (int64, error) {
	f.passes.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleaned, f.cleanupErr
}

func (f *fakeMaintainer) GetSessionStatistics(context.Context) (*models.SessionStatistics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := f.stats
	return &stats, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCleanupScheduler_StartRunsImmediatelyAndOnTick(t *testing.T) {
	t.Parallel()

	m := &fakeMaintainer{cleaned: 2, stats: models.SessionStatistics{ActiveSessions: 5}}
	s := NewCleanupScheduler(m, 20*time.Millisecond, 0, nil)

	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, func() bool { return m.passes.Load() >= 3 })

	st := s.Status()
	if !st.Running || st.LastRun == nil || st.LastCleaned != 2 {
		t.Errorf("Status() = %+v", st)
	}
	if st.Interval != "20ms" {
		t.Errorf("Interval = %q", st.Interval)
	}
}

func TestCleanupScheduler_StartTwiceIsNoop(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	m := &fakeMaintainer{}
	s := NewCleanupScheduler(m, time.Hour, 0, zap.New(core))

	s.Start(context.Background())
	s.Start(context.Background())
	defer s.Stop()

	if logs.FilterMessage("cleanup_scheduler_already_running").Len() != 1 {
		t.Errorf("expected one already-running warning, got %v", logs.All())
	}
	waitFor(t, func() bool { return m.passes.Load() >= 1 })
	time.Sleep(20 * time.Millisecond)
	if got := m.passes.Load(); got != 1 {
		t.Errorf("passes = %d, want 1 (single loop, long interval)", got)
	}
}

func TestCleanupScheduler_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	m := &fakeMaintainer{}
	s := NewCleanupScheduler(m, time.Hour, 0, nil)

	s.Stop()
	s.Start(context.Background())
	waitFor(t, func() bool { return m.passes.Load() >= 1 })
	s.Stop()
	s.Stop()

	if s.Status().Running {
		t.Error("scheduler should not be running after Stop")
	}

	// A stopped scheduler can be started again.
	s.Start(context.Background())
	waitFor(t, func() bool { return m.passes.Load() >= 2 })
	s.Stop()
}

func TestCleanupScheduler_ForceCleanup(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	m := &fakeMaintainer{
		cleaned: 0,
		stats: models.SessionStatistics{
			ActiveSessions:  1500,
			ExpiredSessions: 3,
			CleanupNeeded:   true,
		},
	}
	s := NewCleanupScheduler(m, time.Hour, 1000, zap.New(core))

	res, err := s.ForceCleanup(context.Background())
	if err != nil {
		t.Fatalf("ForceCleanup() error = %v", err)
	}
	if res.Cleaned != 0 || res.Statistics.ActiveSessions != 1500 || res.RanAt.IsZero() {
		t.Errorf("result = %+v", res)
	}
	if logs.FilterMessage("high_active_session_count").Len() != 1 {
		t.Error("expected high-water warning")
	}
	if logs.FilterMessage("cleanup_needed_but_nothing_cleaned").Len() != 1 {
		t.Error("expected consistency warning")
	}
	if s.Status().Running {
		t.Error("ForceCleanup must not start the loop")
	}
}

func TestCleanupScheduler_ForceCleanupError(t *testing.T) {
	t.Parallel()

	m := &fakeMaintainer{cleanupErr: errors.New("store unavailable")}
	s := NewCleanupScheduler(m, time.Hour, 0, nil)

	if _, err := s.ForceCleanup(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if st := s.Status(); st.LastError == "" || st.LastRun == nil {
		t.Errorf("Status() = %+v, want last error recorded", st)
	}
}

func TestCleanupScheduler_StopsWithContext(t *testing.T) {
	t.Parallel()

	m := &fakeMaintainer{}
	s := NewCleanupScheduler(m, time.Hour, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	waitFor(t, func() bool { return m.passes.Load() >= 1 })
	cancel()
	waitFor(t, func() bool { return !s.Status().Running })
	s.Stop()
}
