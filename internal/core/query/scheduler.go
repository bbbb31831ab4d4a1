package query

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/opsai-platform/analytics-backend-go/internal/database/repositories"
)

// CompletionNotifier receives a notification after each scheduled run so
// downstream consumers can invalidate derived data.
type CompletionNotifier interface {
	QueryCompleted(tenantID, queryID string, rowCount int)
}

// Scheduler runs stored queries on their cron schedules.
type Scheduler struct {
	executor *Executor
	queries  repositories.QueryRepository
	notifier CompletionNotifier
	logger   *logrus.Logger

	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// NewScheduler creates a scheduler. notifier may be nil.
func NewScheduler(executor *Executor, queries repositories.QueryRepository, notifier CompletionNotifier, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		executor: executor,
		queries:  queries,
		notifier: notifier,
		logger:   logger,
		cron:     cron.New(),
		entries:  make(map[string]cron.EntryID),
	}
}

// Start loads every scheduled query and begins the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	scheduled, err := s.queries.ListScheduled(ctx)
	if err != nil {
		return err
	}

	for _, def := range scheduled {
		spec, ok := def.ScheduleSpec()
		if !ok {
			continue
		}
		if err := s.Schedule(def.ID, def.TenantID, spec); err != nil {
			s.logger.WithError(err).WithField("query_id", def.ID).Warn("Skipping query with invalid schedule")
		}
	}

	s.cron.Start()
	s.logger.WithField("count", len(scheduled)).Info("Query scheduler started")
	return nil
}

// Schedule registers or replaces the cron entry for one query.
func (s *Scheduler) Schedule(queryID, tenantID, spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[queryID]; ok {
		s.cron.Remove(existing)
		delete(s.entries, queryID)
	}
	if spec == "" {
		return nil
	}

	entryID, err := s.cron.AddFunc(spec, func() {
		s.run(queryID, tenantID)
	})
	if err != nil {
		return err
	}
	s.entries[queryID] = entryID
	return nil
}

// Unschedule removes a query's cron entry if one exists.
func (s *Scheduler) Unschedule(queryID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.entries[queryID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, queryID)
	}
}

// Stop halts the cron loop and waits for in-flight runs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(10 * time.Second):
		s.logger.Warn("Timed out waiting for scheduled queries to finish")
	}
}

func (s *Scheduler) run(queryID, tenantID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := s.executor.Execute(ctx, tenantID, queryID, nil)
	if err != nil {
		s.logger.WithError(err).WithField("query_id", queryID).Error("Scheduled query failed")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"query_id":  queryID,
		"row_count": result.RowCount,
	}).Debug("Scheduled query completed")

	if s.notifier != nil {
		s.notifier.QueryCompleted(tenantID, queryID, result.RowCount)
	}
}
