package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-connect/internal/logger"
)

// dispatchBatchSize bounds the invocations dispatched per run.
const dispatchBatchSize = 50

// historyRetention is the number of task results kept per task.
const historyRetention = 100

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// Scheduler manages background task execution.
// It is a pure core service with no external control API.
type Scheduler struct {
	config      domain.SchedulerConfig
	store       driven.SchedulerStore
	connections driven.ConnectionStore
	invocations driven.ScheduledInvocationStore
	invoker     *Invoker
	now         func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler with configuration.
func NewScheduler(
	config domain.SchedulerConfig,
	store driven.SchedulerStore,
	connections driven.ConnectionStore,
	invocations driven.ScheduledInvocationStore,
	invoker *Invoker,
) *Scheduler {
	return &Scheduler{
		config:      config,
		store:       store,
		connections: connections,
		invocations: invocations,
		invoker:     invoker,
		now:         time.Now,
	}
}

// Start begins the scheduler loop. This method blocks until Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		return nil
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	if err := s.initialiseTasks(ctx); err != nil {
		logger.Error("scheduler: failed to initialise tasks", "error", err)
	}

	return s.run(ctx)
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	// Wait for running tasks to complete
	s.wg.Wait()

	return nil
}

// initialiseTasks ensures all configured tasks exist in the store.
func (s *Scheduler) initialiseTasks(ctx context.Context) error {
	tasks := []struct{ id, name string }{
		{domain.TaskIDOAuthRefresh, "OAuth Token Refresh"},
		{domain.TaskIDInvocationDispatch, "Scheduled Invocation Dispatch"},
	}
	for _, t := range tasks {
		if cfg := s.config.GetTaskConfig(t.id); cfg.Enabled {
			if err := s.ensureTask(ctx, t.id, t.name, cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ensureTask creates or updates a task in the store.
func (s *Scheduler) ensureTask(ctx context.Context, id, name string, cfg domain.TaskConfig) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	if task == nil {
		task = &domain.ScheduledTask{
			ID:       id,
			Name:     name,
			Interval: cfg.Interval,
			Enabled:  cfg.Enabled,
			NextRun:  s.now(),
		}
	} else {
		if task.Interval != cfg.Interval {
			task.Interval = cfg.Interval
			task.NextRun = s.now().Add(cfg.Interval)
		}
		task.Enabled = cfg.Enabled
	}

	return s.store.SaveTask(ctx, task)
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context) error {
	s.checkAndRunDueTasks(ctx)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.checkAndRunDueTasks(ctx)
		}
	}
}

// checkAndRunDueTasks finds and executes tasks that are due.
func (s *Scheduler) checkAndRunDueTasks(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		logger.Error("scheduler: failed to list tasks", "error", err)
		return
	}

	now := s.now()
	for i := range tasks {
		task := &tasks[i]
		if !task.Enabled {
			continue
		}
		if task.NextRun.IsZero() || !task.NextRun.After(now) {
			s.runTask(ctx, task)
		}
	}
}

// runTask executes a single task in the background.
func (s *Scheduler) runTask(ctx context.Context, task *domain.ScheduledTask) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(ctx, task)
	}()
}

// execute runs a task and records its outcome.
func (s *Scheduler) execute(ctx context.Context, task *domain.ScheduledTask) {
	result := &domain.TaskResult{
		TaskID:    task.ID,
		StartedAt: s.now(),
	}

	var err error
	switch task.ID {
	case domain.TaskIDOAuthRefresh:
		result.ItemsProcessed, err = s.RefreshExpiring(ctx)
	case domain.TaskIDInvocationDispatch:
		result.ItemsProcessed, err = s.DispatchDue(ctx)
	default:
		logger.Warn("scheduler: unknown task", "task", task.ID)
		return
	}

	result.EndedAt = s.now()
	if err != nil {
		result.Error = err.Error()
		task.LastError = err.Error()
	} else {
		result.Success = true
		task.LastError = ""
		task.LastSuccess = result.EndedAt
	}
	task.LastRun = result.StartedAt
	task.NextRun = result.EndedAt.Add(task.Interval)

	if saveErr := s.store.SaveTask(ctx, task); saveErr != nil {
		logger.Error("scheduler: failed to save task", "task", task.ID, "error", saveErr)
	}
	if recordErr := s.store.RecordResult(ctx, result); recordErr != nil {
		logger.Error("scheduler: failed to record result", "task", task.ID, "error", recordErr)
	}
	if pruneErr := s.store.PruneHistory(ctx, historyRetention); pruneErr != nil {
		logger.Error("scheduler: failed to prune history", "error", pruneErr)
	}
}

// RefreshExpiring refreshes every connection whose token expires within
// the refresh window. Connections whose refresh fails are disabled by the
// invoker; they count as failures but do not fail the task.
func (s *Scheduler) RefreshExpiring(ctx context.Context) (int, error) {
	if s.connections == nil || s.invoker == nil {
		return 0, nil
	}

	conns, err := s.connections.ExpiringBefore(ctx, s.now().Add(s.config.RefreshWindow))
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for i := range conns {
		if err := s.invoker.RefreshConnection(ctx, &conns[i]); err != nil {
			logger.Warn("scheduler: refresh failed", "connection", conns[i].ID, "error", err)
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

// DispatchDue runs pending scheduled invocations whose time has come.
func (s *Scheduler) DispatchDue(ctx context.Context) (int, error) {
	if s.invocations == nil || s.invoker == nil {
		return 0, nil
	}

	due, err := s.invocations.Due(ctx, s.now(), dispatchBatchSize)
	if err != nil {
		return 0, err
	}

	var errs []error
	for i := range due {
		inv := &due[i]
		_, invokeErr := s.invoker.Invoke(ctx, inv.OrgID, inv.ConnectionID, inv.Method, inv.Args)

		inv.Attempts++
		inv.UpdatedAt = s.now()
		if invokeErr != nil {
			inv.Status = domain.InvocationFailed
			inv.LastError = invokeErr.Error()
		} else {
			inv.Status = domain.InvocationDone
			inv.LastError = ""
		}
		if err := s.invocations.Save(ctx, inv); err != nil {
			errs = append(errs, err)
		}
	}
	return len(due), errors.Join(errs...)
}
