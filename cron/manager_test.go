package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/saiset-co/sai-cache/cache"
	"github.com/saiset-co/sai-cache/logger"
	"github.com/saiset-co/sai-cache/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	manager, err := NewManager(context.Background(), &types.CronConfig{Enabled: true, Timezone: "UTC"}, logger.NewNop(), nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	return manager
}

func noop(context.Context) error { return nil }

func TestNewManagerInvalidTimezone(t *testing.T) {
	_, err := NewManager(context.Background(), &types.CronConfig{Enabled: true, Timezone: "Mars/Olympus"}, logger.NewNop(), nil)
	if !errors.Is(err, types.ErrConfigValidateFailed) {
		t.Fatalf("expected ErrConfigValidateFailed, got %v", err)
	}
}

func TestAddValidation(t *testing.T) {
	manager := newTestManager(t)

	tests := []struct {
		name    string
		jobName string
		spec    string
		job     types.JobFunc
		want    error
	}{
		{name: "empty name", jobName: "", spec: "* * * * * *", job: noop, want: types.ErrCronJobNameIsEmpty},
		{name: "nil job", jobName: "nil", spec: "* * * * * *", job: nil, want: types.ErrCronJobIsNil},
		{name: "bad spec", jobName: "bad", spec: "every minute", job: noop, want: types.ErrCronExpressionInvalid},
		{name: "five fields", jobName: "short", spec: "* * * * *", job: noop, want: types.ErrCronExpressionInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := manager.Add(tt.jobName, tt.spec, tt.job); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if err := manager.Add("dup", "0 0 * * * *", noop); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := manager.Add("dup", "0 0 * * * *", noop); !errors.Is(err, types.ErrCronJobExists) {
		t.Fatalf("expected ErrCronJobExists, got %v", err)
	}
}

func TestRunRecordsStatistics(t *testing.T) {
	manager := newTestManager(t)

	calls := 0
	failing := errors.New("boom")

	_ = manager.Add("flaky", "0 0 * * * *", func(context.Context) error {
		calls++
		if calls == 2 {
			return failing
		}
		return nil
	})

	if err := manager.Run("flaky"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := manager.Run("flaky"); !errors.Is(err, failing) {
		t.Fatalf("expected job error, got %v", err)
	}

	jobs := manager.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}

	info := jobs[0]
	if info.RunCount != 2 || info.ErrorCount != 1 {
		t.Fatalf("unexpected counters: runs=%d errors=%d", info.RunCount, info.ErrorCount)
	}
	if info.LastError != "boom" {
		t.Fatalf("unexpected last error %q", info.LastError)
	}
	if info.LastRun.IsZero() {
		t.Fatal("expected LastRun to be set")
	}
}

func TestRunRecoversPanics(t *testing.T) {
	manager := newTestManager(t)

	_ = manager.Add("panics", "0 0 * * * *", func(context.Context) error {
		panic("kaboom")
	})

	if err := manager.Run("panics"); err == nil {
		t.Fatal("expected an error from a panicking job")
	}
	if jobs := manager.Jobs(); jobs[0].ErrorCount != 1 {
		t.Fatalf("expected the panic to count as an error, got %d", jobs[0].ErrorCount)
	}
}

func TestRemove(t *testing.T) {
	manager := newTestManager(t)

	_ = manager.Add("gone", "0 0 * * * *", noop)

	if err := manager.Remove("gone"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := manager.Remove("gone"); !errors.Is(err, types.ErrCronJobNotFound) {
		t.Fatalf("expected ErrCronJobNotFound, got %v", err)
	}
	if err := manager.Run("gone"); !errors.Is(err, types.ErrCronJobNotFound) {
		t.Fatalf("expected ErrCronJobNotFound, got %v", err)
	}
}

func TestScheduledExecution(t *testing.T) {
	manager := newTestManager(t)

	ran := make(chan struct{}, 1)
	_ = manager.Add("tick", "* * * * * *", func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})

	if err := manager.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := manager.Start(); !errors.Is(err, types.ErrServerAlreadyRunning) {
		t.Fatalf("expected ErrServerAlreadyRunning, got %v", err)
	}

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled job did not run")
	}

	if next := manager.Jobs()[0].NextRun; next.IsZero() {
		t.Fatal("expected NextRun while the scheduler is running")
	}

	if err := manager.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if manager.IsRunning() {
		t.Fatal("expected manager to be stopped")
	}
}

type countingSweeper struct {
	types.CacheManager
	swept int
}

func (s *countingSweeper) DeleteExpired() int {
	s.swept++
	return 3
}

func TestRegisterCacheJobs(t *testing.T) {
	manager := newTestManager(t)

	memory, err := cache.NewMemoryCache(context.Background(), &types.CacheConfig{
		Enabled: true,
		Type:    types.CacheTypeMemory,
		Config:  map[string]interface{}{"max_size": 10},
	}, logger.NewNop())
	if err != nil {
		t.Fatalf("NewMemoryCache: %v", err)
	}

	sweeper := &countingSweeper{CacheManager: memory}

	err = RegisterCacheJobs(manager, &types.CronConfig{
		StatsSchedule: "0 * * * * *",
		SweepSchedule: "*/30 * * * * *",
	}, sweeper, logger.NewNop())
	if err != nil {
		t.Fatalf("RegisterCacheJobs: %v", err)
	}

	jobs := manager.Jobs()
	if len(jobs) != 2 || jobs[0].Name != JobCacheStats || jobs[1].Name != JobCacheSweep {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}

	if err := manager.Run(JobCacheStats); !errors.Is(err, types.ErrServiceIsNotRunning) {
		t.Fatalf("expected stats job to fail on a stopped cache, got %v", err)
	}

	if err := memory.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer memory.Stop()

	if err := manager.Run(JobCacheStats); err != nil {
		t.Fatalf("stats job: %v", err)
	}
	if err := manager.Run(JobCacheSweep); err != nil {
		t.Fatalf("sweep job: %v", err)
	}
	if sweeper.swept != 1 {
		t.Fatalf("expected one sweep, got %d", sweeper.swept)
	}
}

func TestRegisterCacheJobsSkipsEmptySchedules(t *testing.T) {
	manager := newTestManager(t)

	if err := RegisterCacheJobs(manager, &types.CronConfig{}, &countingSweeper{}, logger.NewNop()); err != nil {
		t.Fatalf("RegisterCacheJobs: %v", err)
	}
	if len(manager.Jobs()) != 0 {
		t.Fatal("expected no jobs for empty schedules")
	}
}
