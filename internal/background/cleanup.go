package background

import (
	"context"
	"log/slog"
	"time"
)

// SweepFunc deletes rows that expired at or before now and reports how many were removed
type SweepFunc func(ctx context.Context, now time.Time) (int64, error)

// Task is one named sweep run on every tick
type Task struct {
	Name  string
	Sweep SweepFunc
}

// CleanupManager periodically removes expired login attempts, lockouts and reset tokens
type CleanupManager struct {
	tasks    []Task
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(logger *slog.Logger, interval time.Duration, tasks ...Task) *CleanupManager {
	return &CleanupManager{
		tasks:    tasks,
		logger:   logger,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// SetClock replaces the time source used for expiry comparisons
func (cm *CleanupManager) SetClock(now func() time.Time) {
	cm.now = now
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce runs every task once. A failing task does not stop the others.
func (cm *CleanupManager) RunOnce(ctx context.Context) map[string]int64 {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := cm.now()
	removed := make(map[string]int64, len(cm.tasks))

	for _, task := range cm.tasks {
		rows, err := task.Sweep(cleanupCtx, now)
		if err != nil {
			cm.logger.Error("cleanup task failed",
				slog.String("task", task.Name),
				slog.Any("error", err))
			continue
		}

		removed[task.Name] = rows
		if rows > 0 {
			cm.logger.Info("cleanup task completed",
				slog.String("task", task.Name),
				slog.Int64("rows_deleted", rows))
		}
	}

	return removed
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
