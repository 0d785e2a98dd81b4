package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/aetherhq/aether-backend/internal/pkg/errors"
)

// Classify wraps a storage failure with the matching sentinel from
// internal/pkg/errors so callers can branch with errors.Is.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, s := range []error{
		apperrors.ErrNotFound,
		apperrors.ErrConflict,
		apperrors.ErrRetryable,
		apperrors.ErrPrecondition,
		apperrors.ErrInvalidArgument,
	} {
		if errors.Is(err, s) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return wrap(op, apperrors.ErrNotFound, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return wrap(op, apperrors.ErrRetryable, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505":
			return wrap(op, apperrors.ErrConflict, err) // unique_violation
		case "23503":
			return wrap(op, apperrors.ErrPrecondition, err) // foreign_key_violation
		case "40001", "40P01", "55P03":
			return wrap(op, apperrors.ErrRetryable, err) // serialization/deadlock/lock_not_available
		}
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "duplicate key"), strings.Contains(msg, "unique constraint"):
		return wrap(op, apperrors.ErrConflict, err)
	case strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "serialization"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "temporar"):
		return wrap(op, apperrors.ErrRetryable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func wrap(op string, sentinel, err error) error {
	return fmt.Errorf("%s: %w: %w", op, sentinel, err)
}
