package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gosuda/sgi/internal/domain"
)

// classify wraps err with the domain error kind it represents, keeping the
// driver error in the chain for logs.
func classify(caller string, err error) error {
	if err == nil {
		return nil
	}
	if kind := kindOf(err); kind != nil {
		return fmt.Errorf("%s: %w: %w", caller, kind, err)
	}
	return fmt.Errorf("%s: %w", caller, err)
}

func kindOf(err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return domain.ErrNotFound
	case errors.Is(err, context.DeadlineExceeded), pgconn.Timeout(err):
		return domain.ErrTimeout
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42P01", // undefined_table
			"3F000", // invalid_schema_name
			"42703", // undefined_column
			"42883", // undefined_function
			"57P01", // admin_shutdown
			"57P03", // cannot_connect_now
			"53300": // too_many_connections
			return domain.ErrBackendUnavailable
		case "23505", "40001", "40P01":
			return domain.ErrConflict
		case "23503":
			return domain.ErrNotFound
		case "23502", "23514", "22P02":
			return domain.ErrValidation
		}
		return nil
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return domain.ErrBackendUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.ErrBackendUnavailable
	}
	return nil
}
