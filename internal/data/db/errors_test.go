package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/aetherhq/aether-backend/internal/pkg/errors"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want error
	}{
		{name: "not found", err: gorm.ErrRecordNotFound, want: apperrors.ErrNotFound},
		{name: "canceled", err: context.Canceled, want: apperrors.ErrRetryable},
		{name: "unique", err: &pgconn.PgError{Code: "23505"}, want: apperrors.ErrConflict},
		{name: "fk", err: &pgconn.PgError{Code: "23503"}, want: apperrors.ErrPrecondition},
		{name: "deadlock", err: fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40P01"}), want: apperrors.ErrRetryable},
		{name: "sqlite unique", err: errors.New("UNIQUE constraint failed: kpi_snapshot.org_id"), want: apperrors.ErrConflict},
		{name: "already classified", err: fmt.Errorf("inner: %w", apperrors.ErrConflict), want: apperrors.ErrConflict},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Classify("op", tc.err)
			if !errors.Is(got, tc.want) {
				t.Fatalf("Classify(%v) = %v, want %v", tc.err, got, tc.want)
			}
			if !errors.Is(got, tc.err) {
				t.Fatalf("Classify must keep the cause: %v", got)
			}
		})
	}

	if Classify("op", nil) != nil {
		t.Fatalf("nil must stay nil")
	}
	if err := Classify("op", errors.New("boom")); errors.Is(err, apperrors.ErrRetryable) || errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("plain error must not be classified: %v", err)
	}
}
