package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/voxtour/voxtour-go/internal/domain"
	"github.com/voxtour/voxtour-go/internal/repository"
)

type TipRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *TipRepo) With(db DB) *TipRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *TipRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const tipColumns = `id, tour_id, device_id, amount_cents, currency,
	processing_fee, platform_fee, total_cents, status, provider_ref,
	created_at, updated_at`

func scanTip(row pgx.Row) (*domain.TourTip, error) {
	var t domain.TourTip
	err := row.Scan(
		&t.ID, &t.TourID, &t.DeviceID, &t.AmountCents, &t.Currency,
		&t.ProcessingFee, &t.PlatformFee, &t.TotalCents, &t.Status, &t.ProviderRef,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts a tip with its fee breakdown in pending status.
func (r *TipRepo) Create(ctx context.Context, t *domain.TourTip) (*domain.TourTip, error) {
	const op = "postgres.TipRepo.Create"

	db := r.handle()

	created, err := scanTip(db.QueryRow(ctx,
		`INSERT INTO tour_tips
		   (id, tour_id, device_id, amount_cents, currency,
		    processing_fee, platform_fee, total_cents, status, provider_ref)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', $9)
		 RETURNING `+tipColumns,
		t.ID, t.TourID, t.DeviceID, t.AmountCents, t.Currency,
		t.ProcessingFee, t.PlatformFee, t.TotalCents, t.ProviderRef,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return created, nil
}

// Get retrieves a tip by ID.
func (r *TipRepo) Get(ctx context.Context, id uuid.UUID) (*domain.TourTip, error) {
	const op = "postgres.TipRepo.Get"

	db := r.handle()

	t, err := scanTip(db.QueryRow(ctx,
		`SELECT `+tipColumns+` FROM tour_tips WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return t, nil
}

// SetStatusByProviderRef applies the processor's status as a last-known
// value. Succeeded tips are immutable: the guard skips them and the stored
// row is returned unchanged.
func (r *TipRepo) SetStatusByProviderRef(
	ctx context.Context,
	providerRef string,
	status domain.TipStatus,
) (*domain.TourTip, error) {
	const op = "postgres.TipRepo.SetStatusByProviderRef"

	db := r.handle()

	t, err := scanTip(db.QueryRow(ctx,
		`UPDATE tour_tips
		 SET status = $2, updated_at = now()
		 WHERE provider_ref = $1 AND status <> 'succeeded'
		 RETURNING `+tipColumns,
		providerRef, status,
	))
	if err == nil {
		return t, nil
	}

	if mapped := translateDBErr(err); !errors.Is(mapped, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s:%w", op, mapped)
	}

	// Either the ref is unknown or the tip already succeeded.
	cur, err := scanTip(db.QueryRow(ctx,
		`SELECT `+tipColumns+` FROM tour_tips WHERE provider_ref = $1`,
		providerRef,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return cur, nil
}
