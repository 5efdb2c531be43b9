/*
scheduler.go - Scheduled ledger audit

PURPOSE:
  Periodically replays the transaction log and compares the result with
  the product snapshot. Drift means stock was changed without a record
  (for example after a partial commit); negative replayed stock means the
  ledger itself is inconsistent. Every run is recorded for the UI.

DESIGN:
  - Auditor does the work and is shared with the /api/audit endpoints
  - AuditScheduler drives it from a robfig/cron schedule
  - Runs never modify stock; an operator corrects drift with a new
    transaction

CONFIGURATION:
  AUDIT_SCHEDULE: standard cron spec or descriptor (default "@hourly");
  empty disables the scheduler.

USAGE:
  sched := api.NewAuditScheduler(handler.Auditor, "@hourly", logger)
  if err := sched.Start(); err != nil { ... }
  defer sched.Stop()
*/
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/warp/inventory-ledger/inventory"
)

// =============================================================================
// AUDITOR
// =============================================================================

// Auditor reconciles the snapshot with the ledger and records the result.
type Auditor struct {
	coordinator *inventory.Coordinator
	log         inventory.AuditLog
	logger      *zap.Logger

	Now   func() time.Time
	NewID func() string
}

// NewAuditor creates an auditor. log may be nil; runs are then not recorded.
func NewAuditor(coord *inventory.Coordinator, log inventory.AuditLog, logger *zap.Logger) *Auditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{
		coordinator: coord,
		log:         log,
		logger:      logger,
		Now:         time.Now,
		NewID:       uuid.NewString,
	}
}

// Check replays the ledger without recording anything.
func (a *Auditor) Check(ctx context.Context) (inventory.AuditReport, error) {
	var report inventory.AuditReport
	err := a.coordinator.View(ctx, func(snap *inventory.Snapshot, txs []inventory.Transaction) error {
		report = inventory.Reconcile(snap, txs)
		return nil
	})
	return report, err
}

// Run checks the ledger and saves the result to the audit log.
func (a *Auditor) Run(ctx context.Context) (inventory.AuditRun, error) {
	report, err := a.Check(ctx)
	if err != nil {
		return inventory.AuditRun{}, fmt.Errorf("audit: %w", err)
	}

	run := inventory.AuditRun{ID: a.NewID(), RanAt: a.now().UTC(), Report: report}

	if report.Consistent {
		a.logger.Info("ledger consistent",
			zap.Int("products", report.Products),
			zap.Int("transactions", report.Transactions),
		)
	} else {
		for _, d := range report.Drift {
			a.logger.Warn("stock drift",
				zap.String("product_id", d.ProductID),
				zap.String("snapshot", d.Snapshot.String()),
				zap.String("ledger", d.Ledger.String()),
			)
		}
		for _, n := range report.Negative {
			a.logger.Warn("negative replayed stock",
				zap.String("product_id", n.ProductID),
				zap.String("transaction_id", string(n.TransactionID)),
				zap.String("quantity", n.Quantity.String()),
			)
		}
	}

	if a.log != nil {
		if err := a.log.SaveAuditRun(ctx, run); err != nil {
			return run, fmt.Errorf("save audit run: %w", err)
		}
	}
	return run, nil
}

// Runs lists recorded runs, latest first.
func (a *Auditor) Runs(ctx context.Context, limit int) ([]inventory.AuditRun, error) {
	if a.log == nil {
		return []inventory.AuditRun{}, nil
	}
	return a.log.ListAuditRuns(ctx, limit)
}

func (a *Auditor) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}

// =============================================================================
// SCHEDULER
// =============================================================================

// AuditScheduler runs the Auditor on a cron schedule.
type AuditScheduler struct {
	cron     *cron.Cron
	auditor  *Auditor
	schedule string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewAuditScheduler creates a scheduler. An empty schedule disables it.
func NewAuditScheduler(auditor *Auditor, schedule string, logger *zap.Logger) *AuditScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditScheduler{
		cron:     cron.New(),
		auditor:  auditor,
		schedule: schedule,
		timeout:  2 * time.Minute,
		logger:   logger,
	}
}

// Start registers the audit job and starts the cron loop.
func (s *AuditScheduler) Start() error {
	if s.schedule == "" {
		s.logger.Info("audit scheduler disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, s.runScheduled); err != nil {
		return fmt.Errorf("schedule audit %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.logger.Info("audit scheduler started", zap.String("schedule", s.schedule))
	return nil
}

// Stop stops the cron loop and waits for a running audit to finish.
func (s *AuditScheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("audit scheduler stopped")
}

func (s *AuditScheduler) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.auditor.Run(ctx); err != nil {
		s.logger.Error("scheduled audit failed", zap.Error(err))
	}
}
