package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/voxtour/voxtour-go/internal/repository"
)

// uxToursGuideActive is the partial unique index enforcing at most one
// active tour per guide. Start relies on it instead of check-then-write.
const uxToursGuideActive = "ux_tours_guide_active"

func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError

	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return true
		}
	}

	return false
}

func translateDBErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}

	var pge *pgconn.PgError
	if errors.As(err, &pge) {
		// unique_violation
		if pge.Code == "23505" {
			if pge.ConstraintName == uxToursGuideActive {
				return repository.ErrActiveTourExists
			}
			return repository.ErrConflict
		}
	}

	return err
}
