package schedule

import (
	"context"
	"errors"
	"testing"

	"github.com/aetherhq/aether-backend/internal/data/repos/testutil"
	"github.com/aetherhq/aether-backend/internal/services"
)

type fakeBackfill struct {
	calls int
	err   error
}

func (f *fakeBackfill) Run(ctx context.Context, opts services.BackfillOptions) (*services.BackfillReport, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &services.BackfillReport{Patched: 2}, nil
}

func TestStartRejectsBadSpec(t *testing.T) {
	s := New(testutil.Logger(t), &fakeBackfill{})
	if err := s.Start(t.Context(), "every tuesday"); err == nil {
		t.Fatalf("Start accepted an invalid cron spec")
	}
	if err := s.Start(t.Context(), "off"); err != nil {
		t.Fatalf("Start(off): %v", err)
	}
}

func TestSweepDatesRunsBackfill(t *testing.T) {
	fb := &fakeBackfill{}
	s := New(testutil.Logger(t), fb)
	s.SweepDates(t.Context())
	fb.err = errors.New("db down")
	s.SweepDates(t.Context())
	if fb.calls != 2 {
		t.Fatalf("calls = %d want 2", fb.calls)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	s.SweepDates(ctx)
	if fb.calls != 2 {
		t.Fatalf("canceled sweep should not run backfill")
	}
}
