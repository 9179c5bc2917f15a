package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// Manager schedules named jobs on a seconds-resolution cron. Each run gets
// a context bounded by the job timeout and cancelled on Stop.
type Manager struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	metrics         types.MetricsManager
	cron            *cron.Cron
	timezone        *time.Location
	jobs            map[string]*types.JobEntry
	mu              sync.RWMutex
	state           atomic.Value
	shutdownTimeout time.Duration
	jobTimeout      time.Duration
}

func NewManager(ctx context.Context, config *types.CronConfig, logger types.Logger, metrics types.MetricsManager) (*Manager, error) {
	timezone := time.UTC
	if config != nil && config.Timezone != "" {
		location, err := time.LoadLocation(config.Timezone)
		if err != nil {
			return nil, types.Errorf(types.ErrConfigValidateFailed, "cron timezone %q: %v", config.Timezone, err)
		}
		timezone = location
	}

	cronLogger := safeCronLogger{logger: logger}

	managerCtx, cancel := context.WithCancel(ctx)

	manager := &Manager{
		ctx:     managerCtx,
		cancel:  cancel,
		logger:  logger,
		metrics: metrics,
		cron: cron.New(
			cron.WithLocation(timezone),
			cron.WithSeconds(),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		timezone:        timezone,
		jobs:            make(map[string]*types.JobEntry),
		shutdownTimeout: 10 * time.Second,
		jobTimeout:      5 * time.Minute,
	}

	manager.state.Store(StateStopped)

	return manager, nil
}

func (m *Manager) Add(jobName, spec string, job types.JobFunc) error {
	if jobName == "" {
		return types.ErrCronJobNameIsEmpty
	}

	if job == nil {
		return types.ErrCronJobIsNil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[jobName]; exists {
		return types.Errorf(types.ErrCronJobExists, "job: %s", jobName)
	}

	entryID, err := m.cron.AddFunc(spec, func() { m.execute(jobName) })
	if err != nil {
		return types.Errorf(types.ErrCronExpressionInvalid, "%q: %v", spec, err)
	}

	m.jobs[jobName] = &types.JobEntry{
		ID:      entryID,
		Name:    jobName,
		Spec:    spec,
		Job:     job,
		AddedAt: time.Now(),
	}
	m.setGauge("cron_active_jobs", float64(len(m.jobs)))

	m.logger.Info("Cron job added", zap.String("job_name", jobName), zap.String("spec", spec))
	return nil
}

func (m *Manager) Remove(jobName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.jobs[jobName]
	if !exists {
		return types.Errorf(types.ErrCronJobNotFound, "job: %s", jobName)
	}

	m.cron.Remove(entry.ID)
	delete(m.jobs, jobName)
	m.setGauge("cron_active_jobs", float64(len(m.jobs)))

	m.logger.Info("Cron job removed", zap.String("job_name", jobName))
	return nil
}

// Run executes a job immediately, outside its schedule.
func (m *Manager) Run(jobName string) error {
	m.mu.RLock()
	_, exists := m.jobs[jobName]
	m.mu.RUnlock()

	if !exists {
		return types.Errorf(types.ErrCronJobNotFound, "job: %s", jobName)
	}

	return m.execute(jobName)
}

func (m *Manager) Jobs() []types.JobInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]types.JobInfo, 0, len(m.jobs))
	for _, entry := range m.jobs {
		info := types.JobInfo{
			Name:         entry.Name,
			Spec:         entry.Spec,
			LastRun:      entry.LastRun,
			LastDuration: entry.LastDuration,
			RunCount:     entry.RunCount,
			ErrorCount:   entry.ErrorCount,
			LastError:    entry.LastError,
		}

		if entry.RunCount > 0 {
			info.AvgDuration = entry.TotalDuration / time.Duration(entry.RunCount)
		}

		if cronEntry := m.cron.Entry(entry.ID); cronEntry.ID != 0 {
			info.NextRun = cronEntry.Next
		}

		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

func (m *Manager) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	m.cron.Start()
	m.setState(StateRunning)
	m.setGauge("cron_scheduler_running", 1)

	m.logger.Info("Cron manager started",
		zap.String("timezone", m.timezone.String()),
		zap.Int("jobs", len(m.Jobs())))
	return nil
}

func (m *Manager) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer m.setState(StateStopped)

	m.cancel()
	stopCtx := m.cron.Stop()

	select {
	case <-stopCtx.Done():
	case <-time.After(m.shutdownTimeout):
		m.logger.Warn("Cron manager stop timeout, running jobs were abandoned")
		return types.ErrCronJobTimeout
	}

	m.setGauge("cron_scheduler_running", 0)
	m.logger.Info("Cron manager stopped")
	return nil
}

func (m *Manager) IsRunning() bool {
	return m.getState() == StateRunning
}

func (m *Manager) getState() State {
	return m.state.Load().(State)
}

func (m *Manager) setState(newState State) {
	m.state.Store(newState)
}

func (m *Manager) transitionState(from, to State) bool {
	return m.state.CompareAndSwap(from, to)
}

func (m *Manager) execute(jobName string) (err error) {
	m.mu.RLock()
	entry, exists := m.jobs[jobName]
	var job types.JobFunc
	if exists {
		job = entry.Job
	}
	m.mu.RUnlock()

	if !exists {
		return types.Errorf(types.ErrCronJobNotFound, "job: %s", jobName)
	}

	jobCtx, cancel := context.WithTimeout(m.ctx, m.jobTimeout)
	defer cancel()

	start := time.Now()

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panic: %v", r)
			}
		}()
		err = job(jobCtx)
	}()

	duration := time.Since(start)
	m.finish(jobName, start, duration, err)

	return err
}

func (m *Manager) finish(jobName string, start time.Time, duration time.Duration, err error) {
	result := "success"

	m.mu.Lock()
	if entry, exists := m.jobs[jobName]; exists {
		entry.LastRun = start
		entry.LastDuration = duration
		entry.TotalDuration += duration
		entry.RunCount++
		entry.LastError = ""

		if err != nil {
			entry.ErrorCount++
			entry.LastError = err.Error()
		}
	}
	m.mu.Unlock()

	if err != nil {
		result = "error"
		m.logger.Error("Cron job failed",
			zap.String("job_name", jobName),
			zap.Duration("duration", duration),
			zap.Error(err))
	} else {
		m.logger.Debug("Cron job completed",
			zap.String("job_name", jobName),
			zap.Duration("duration", duration))
	}

	if m.metrics == nil {
		return
	}

	m.metrics.Counter("cron_job_executions_total", map[string]string{
		"job_name": jobName,
		"result":   result,
	}).Inc()

	m.metrics.Histogram("cron_job_duration_seconds",
		[]float64{0.001, 0.01, 0.1, 1, 10, 60},
		map[string]string{"job_name": jobName},
	).Observe(duration.Seconds())
}

func (m *Manager) setGauge(name string, value float64) {
	if m.metrics == nil {
		return
	}
	m.metrics.Gauge(name, nil).Set(value)
}

// safeCronLogger adapts types.Logger to cron.Logger.
type safeCronLogger struct {
	logger types.Logger
}

func (l safeCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, toFields(keysAndValues)...)
}

func (l safeCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(toFields(keysAndValues), zap.Error(err))...)
}

func toFields(keysAndValues []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)

	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, zap.Any(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}

	return fields
}
