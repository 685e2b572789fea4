/*
scheduler.go - Background alert sweep

PURPOSE:
  Periodically rebuilds the alert list shown on the dashboard:
  - one "payment" alert per player whose current month is not fully paid
  - one "stock" alert per inventory item at or below its minimum

DESIGN:
  - Scheduler wraps robfig/cron (six-field specs, seconds first)
  - AlertSweeper is a Job; the same Sweep runs from cron and from
    POST /api/alerts/sweep
  - Each sweep replaces the whole alert set atomically, so stale alerts
    disappear once a player pays or stock is replenished

CONFIGURATION:
  - SWEEP_SCHEDULE: cron spec (default "0 0 6 * * *", daily at 06:00)
  - SWEEP_ENABLED: whether cmd/server registers the job

USAGE:
  sched := NewScheduler(log)
  sched.AddJob(cfg.SweepSchedule, sweeper)
  sched.Start()
  // ... later
  sched.Stop()

SEE ALSO:
  - dashboard.go: ListAlerts, RunSweep handlers
  - billing/status.go: Status evaluation used for payment alerts
*/
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/efusa/academy/academy"
	"github.com/efusa/academy/billing"
	"github.com/efusa/academy/metrics"
)

// =============================================================================
// SCHEDULER
// =============================================================================

// Job is a unit of scheduled background work.
type Job interface {
	Run() error
	Name() string
}

// Scheduler runs jobs on cron schedules.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// NewScheduler creates a scheduler that accepts six-field cron specs.
func NewScheduler(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins running registered jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// AddJob registers job under a cron spec, e.g. "0 0 6 * * *" or "@every 1h".
func (s *Scheduler) AddJob(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := job.Run(); err != nil {
			s.log.Error().Err(err).Str("job", job.Name()).Msg("job failed")
			return
		}
		s.log.Debug().Str("job", job.Name()).Dur("took", time.Since(start)).Msg("job completed")
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name(), err)
	}

	s.log.Info().Str("schedule", spec).Str("job", job.Name()).Msg("job registered")
	return nil
}

// Entries reports how many jobs are registered.
func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }

// =============================================================================
// ALERT SWEEP
// =============================================================================

// SweepStore is what the sweep reads and writes.
type SweepStore interface {
	ListPlayers(ctx context.Context) ([]academy.Player, error)
	ListItems(ctx context.Context) ([]academy.InventoryItem, error)
	GetSettings(ctx context.Context) (academy.Settings, error)
	ReplaceAlerts(ctx context.Context, alerts []academy.Alert) error
}

// SweepResult counts the alerts a sweep produced.
type SweepResult struct {
	Payments int
	Stock    int
}

// Total is the number of alerts stored.
func (r SweepResult) Total() int { return r.Payments + r.Stock }

// AlertSweeper rebuilds the alert list.
type AlertSweeper struct {
	store   SweepStore
	billing *billing.Engine
	metrics *metrics.Recorder
	log     zerolog.Logger
	timeout time.Duration
}

// NewAlertSweeper creates a sweeper. m may be nil.
func NewAlertSweeper(store SweepStore, engine *billing.Engine, m *metrics.Recorder, log zerolog.Logger) *AlertSweeper {
	return &AlertSweeper{
		store:   store,
		billing: engine,
		metrics: m,
		log:     log.With().Str("component", "sweep").Logger(),
		timeout: 2 * time.Minute,
	}
}

func (s *AlertSweeper) Name() string { return "alert-sweep" }

// Run sweeps with a bounded context (cron entry point).
func (s *AlertSweeper) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, err := s.Sweep(ctx)
	return err
}

// Sweep computes the current alerts and replaces the stored set.
func (s *AlertSweeper) Sweep(ctx context.Context) (SweepResult, error) {
	alerts, res, err := s.collect(ctx)
	if err == nil {
		err = s.store.ReplaceAlerts(ctx, alerts)
	}

	s.metrics.Sweep(err, map[string]int{
		string(academy.AlertPayment): res.Payments,
		string(academy.AlertStock):   res.Stock,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("alert sweep failed")
		return SweepResult{}, err
	}

	s.log.Info().Int("payment_alerts", res.Payments).Int("stock_alerts", res.Stock).Msg("alert sweep completed")
	return res, nil
}

func (s *AlertSweeper) collect(ctx context.Context) ([]academy.Alert, SweepResult, error) {
	var res SweepResult

	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, res, err
	}
	players, err := s.store.ListPlayers(ctx)
	if err != nil {
		return nil, res, err
	}
	items, err := s.store.ListItems(ctx)
	if err != nil {
		return nil, res, err
	}

	ids := make([]academy.PlayerID, len(players))
	for i, p := range players {
		ids[i] = p.ID
	}
	statuses, err := s.billing.Statuses(ctx, ids)
	if err != nil {
		return nil, res, err
	}

	now := s.billing.Now().UTC().Truncate(time.Second)
	month := s.billing.CurrentMonth()
	var alerts []academy.Alert

	for _, p := range players {
		st := statuses[p.ID]
		if st.Status != academy.StatusDebt && st.Status != academy.StatusPartial {
			continue
		}
		msg := fmt.Sprintf("%s owes %s for %s",
			p.FullName(), academy.FormatMoney(st.Debt, settings.Currency), month)
		alerts = append(alerts, academy.Alert{
			ID:        uuid.NewString(),
			Kind:      academy.AlertPayment,
			SubjectID: int64(p.ID),
			Message:   msg,
			CreatedAt: now,
		})
		res.Payments++
	}

	for _, item := range items {
		if !item.LowStock() {
			continue
		}
		alerts = append(alerts, academy.Alert{
			ID:        uuid.NewString(),
			Kind:      academy.AlertStock,
			SubjectID: item.ID,
			Message:   fmt.Sprintf("%s: %d left (minimum %d)", item.Name, item.Stock, item.MinStock),
			CreatedAt: now,
		})
		res.Stock++
	}

	return alerts, res, nil
}
