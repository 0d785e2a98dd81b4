package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/aetherhq/aether-backend/internal/pkg/logger"
	"github.com/aetherhq/aether-backend/internal/services"
)

const DefaultBackfillSpec = "@daily"

// Scheduler runs periodic maintenance: today only the date backfill sweep.
type Scheduler struct {
	log      *logger.Logger
	cron     *cron.Cron
	backfill services.BackfillService

	mu      sync.Mutex
	running bool
}

func New(baseLog *logger.Logger, backfill services.BackfillService) *Scheduler {
	return &Scheduler{
		log:      baseLog.With("component", "Scheduler"),
		cron:     cron.New(cron.WithChain(cron.Recover(cronLogger{baseLog}))),
		backfill: backfill,
	}
}

// Start registers the backfill sweep under spec ("off" disables it) and starts
// the cron loop. Sweeps stop when ctx is canceled.
func (s *Scheduler) Start(ctx context.Context, spec string) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = DefaultBackfillSpec
	}
	if strings.EqualFold(spec, "off") {
		s.log.Info("date backfill schedule disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(spec, func() { s.SweepDates(ctx) }); err != nil {
		return fmt.Errorf("schedule date backfill %q: %w", spec, err)
	}
	s.cron.Start()
	s.log.Info("scheduler started", "date_backfill", spec)
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
	}()
	return nil
}

// SweepDates runs one backfill pass over every upload with undated rows.
// Overlapping ticks are dropped.
func (s *Scheduler) SweepDates(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn("date backfill still running; skipping tick")
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if ctx.Err() != nil {
		return
	}
	report, err := s.backfill.Run(ctx, services.BackfillOptions{})
	if err != nil {
		s.log.Error("date backfill failed", "error", err)
		return
	}
	s.log.Info("date backfill finished",
		"uploads", len(report.Uploads),
		"patched", report.Patched,
		"still_missing", report.StillMissing,
		"failed", report.Failed,
	)
}

// cronLogger adapts the zap-backed logger to cron.Logger.
type cronLogger struct{ log *logger.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
