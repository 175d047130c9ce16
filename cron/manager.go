package cron

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/eldopolis/portal-core/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// Manager schedules the cache maintenance jobs. Specs use the six-field
// form with a leading seconds column.
type Manager struct {
	ctx          context.Context
	cancel       context.CancelFunc
	logger       types.Logger
	metrics      types.MetricsManager
	cron         *cron.Cron
	timezone     *time.Location
	jobs         map[string]*types.JobEntry
	state        atomic.Value
	mu           sync.RWMutex
	shutdown     chan struct{}
	shutdownOnce sync.Once
	jobTimeout   time.Duration
}

func NewManager(ctx context.Context, logger types.Logger, metrics types.MetricsManager, config *types.CronConfig) (types.CronManager, error) {
	timezone := time.UTC
	if config != nil && config.Timezone != "" {
		loaded, err := time.LoadLocation(config.Timezone)
		if err != nil {
			logger.Warn("Unknown cron timezone, falling back to UTC",
				zap.String("timezone", config.Timezone))
		} else {
			timezone = loaded
		}
	}

	cronOptions := []cron.Option{
		cron.WithLocation(timezone),
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(safeCronLogger{logger: logger})),
	}

	managerCtx, cancel := context.WithCancel(ctx)

	manager := &Manager{
		ctx:        managerCtx,
		cancel:     cancel,
		logger:     logger,
		metrics:    metrics,
		cron:       cron.New(cronOptions...),
		timezone:   timezone,
		jobs:       make(map[string]*types.JobEntry),
		shutdown:   make(chan struct{}),
		jobTimeout: 10 * time.Minute,
	}

	manager.state.Store(StateStopped)

	return manager, nil
}

func (m *Manager) Add(jobName, spec string, job func()) error {
	if jobName == "" {
		return types.ErrCronJobNameIsEmpty
	}
	if spec == "" {
		return types.ErrCronExpressionInvalid
	}
	if job == nil {
		return types.ErrCronJobIsNil
	}

	return m.addJob(jobName, spec, m.wrapJob(jobName, job))
}

func (m *Manager) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		return types.ErrCronIsRunning
	}

	defer func() {
		if m.getState() == StateStarting {
			m.setState(StateRunning)
		}
	}()

	m.cron.Start()
	m.logger.Info("Cron manager started",
		zap.String("timezone", m.timezone.String()),
		zap.Int("jobs", len(m.jobs)))

	return nil
}

func (m *Manager) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) &&
		!m.transitionState(StateStarting, StateStopping) {
		return types.ErrServerNotRunning
	}

	m.shutdownOnce.Do(func() {
		defer func() {
			m.setState(StateStopped)
			m.cancel()
		}()

		close(m.shutdown)

		stopCtx := m.cron.Stop()
		select {
		case <-stopCtx.Done():
			m.logger.Info("Cron scheduler stopped gracefully")
		case <-time.After(10 * time.Second):
			m.logger.Warn("Cron scheduler stop timeout, running jobs abandoned")
		}
	})

	return nil
}

func (m *Manager) IsRunning() bool {
	return m.getState() == StateRunning
}

func (m *Manager) getState() State {
	return m.state.Load().(State)
}

func (m *Manager) setState(newState State) bool {
	return m.state.CompareAndSwap(m.getState(), newState)
}

func (m *Manager) transitionState(from, to State) bool {
	return m.state.CompareAndSwap(from, to)
}

func (m *Manager) addJob(jobName, spec string, job func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.shutdown:
		return types.ErrCronSchedulerStopped
	default:
	}

	if _, exists := m.jobs[jobName]; exists {
		return types.ErrCronJobExists
	}

	entryID, err := m.cron.AddFunc(spec, job)
	if err != nil {
		return types.WrapError(err, "failed to add cron job")
	}

	entry := &types.JobEntry{
		ID:      entryID,
		Name:    jobName,
		Spec:    spec,
		Job:     job,
		AddedAt: time.Now(),
	}

	if cronEntry := m.cron.Entry(entryID); cronEntry.ID != 0 {
		entry.NextRun = cronEntry.Next
	}

	m.jobs[jobName] = entry

	m.logger.Info("Cron job added",
		zap.String("job_name", jobName),
		zap.String("spec", spec))

	return nil
}

func (m *Manager) wrapJob(jobName string, job func()) func() {
	return func() {
		select {
		case <-m.shutdown:
			m.logger.Info("Job skipped due to shutdown",
				zap.String("job_name", jobName))
			return
		default:
		}

		startTime := time.Now()

		jobCtx, cancel := context.WithTimeout(m.ctx, m.jobTimeout)
		defer cancel()

		var err error
		done := make(chan struct{})

		go func() {
			defer func() {
				if r := recover(); r != nil {
					err = types.Errorf(types.ErrCronJobFailed, "job panic: %v", r)
					m.logger.Error("Cron job panicked",
						zap.String("job_name", jobName),
						zap.Any("panic", r))
				}
				close(done)
			}()
			job()
		}()

		select {
		case <-done:
		case <-jobCtx.Done():
			if types.IsError(jobCtx.Err(), context.DeadlineExceeded) {
				err = types.Errorf(types.ErrCronJobTimeout, "timeout after %v", m.jobTimeout)
			} else {
				err = types.WrapError(jobCtx.Err(), "job canceled")
			}
		}

		duration := time.Since(startTime)

		result := "success"
		if err != nil {
			result = "error"
		}

		m.recordJobMetrics(jobName, result, duration)
		m.updateJobStats(jobName, startTime, duration, err)

		if err != nil {
			m.logger.Error("Cron job failed",
				zap.String("job_name", jobName),
				zap.Duration("duration", duration),
				zap.Error(err))
		} else {
			m.logger.Debug("Cron job completed",
				zap.String("job_name", jobName),
				zap.Duration("duration", duration))
		}
	}
}

func (m *Manager) updateJobStats(jobName string, startTime time.Time, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.jobs[jobName]
	if !exists {
		return
	}

	entry.LastRun = startTime
	entry.LastDuration = duration
	entry.RunCount++
	entry.Error = err

	if cronEntry := m.cron.Entry(entry.ID); cronEntry.ID != 0 {
		entry.NextRun = cronEntry.Next
	}
}

func (m *Manager) recordJobMetrics(jobName, result string, duration time.Duration) {
	if m.metrics == nil {
		return
	}

	m.metrics.Counter("cron_job_executions_total", map[string]string{
		"job_name": jobName,
		"result":   result,
	}).Inc()

	m.metrics.Histogram("cron_job_duration_seconds",
		[]float64{0.1, 1.0, 10.0, 60.0, 300.0},
		map[string]string{"job_name": jobName},
	).Observe(duration.Seconds())
}

type safeCronLogger struct {
	logger types.Logger
}

func (l safeCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, toFields(keysAndValues)...)
}

func (l safeCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := append(toFields(keysAndValues), zap.Error(err))
	l.logger.Error(msg, fields...)
}

func toFields(keysAndValues []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		fields = append(fields, zap.Any(fmt.Sprintf("%v", keysAndValues[i]), keysAndValues[i+1]))
	}
	return fields
}
