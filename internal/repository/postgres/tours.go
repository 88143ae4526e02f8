package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/voxtour/voxtour-go/internal/domain"
	"github.com/voxtour/voxtour-go/internal/repository"
)

type TourRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *TourRepo) With(db DB) *TourRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *TourRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const tourColumns = `id, guide_id, title, unique_code, status,
	room_started_at, room_finished_at, guide_joined_room_at, guide_left_room_at,
	current_participants, total_participants, completed_at, deleted_at,
	created_at, updated_at`

func scanTour(row pgx.Row) (*domain.Tour, error) {
	var t domain.Tour
	err := row.Scan(
		&t.ID, &t.GuideID, &t.Title, &t.UniqueCode, &t.Status,
		&t.RoomStartedAt, &t.RoomFinishedAt, &t.GuideJoinedRoomAt, &t.GuideLeftRoomAt,
		&t.CurrentParticipants, &t.TotalParticipants, &t.CompletedAt, &t.DeletedAt,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts a new tour in pending status.
//
// Returns:
//   - error: repository.ErrConflict if the unique code is already taken.
func (r *TourRepo) Create(ctx context.Context, t *domain.Tour) (*domain.Tour, error) {
	const op = "postgres.TourRepo.Create"

	db := r.handle()

	created, err := scanTour(db.QueryRow(ctx,
		`INSERT INTO tours (id, guide_id, title, unique_code, status)
		 VALUES ($1, $2, $3, $4, 'pending')
		 RETURNING `+tourColumns,
		t.ID, t.GuideID, t.Title, t.UniqueCode,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return created, nil
}

// Get retrieves a tour by ID. Soft-deleted tours are excluded.
//
// Returns:
//   - error: repository.ErrNotFound if the tour is absent or deleted.
func (r *TourRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Tour, error) {
	const op = "postgres.TourRepo.Get"

	db := r.handle()

	t, err := scanTour(db.QueryRow(ctx,
		`SELECT `+tourColumns+` FROM tours WHERE id = $1 AND deleted_at IS NULL`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return t, nil
}

// GetByCode retrieves a tour by its human-entered join code.
func (r *TourRepo) GetByCode(ctx context.Context, code string) (*domain.Tour, error) {
	const op = "postgres.TourRepo.GetByCode"

	db := r.handle()

	t, err := scanTour(db.QueryRow(ctx,
		`SELECT `+tourColumns+` FROM tours WHERE unique_code = $1 AND deleted_at IS NULL`,
		code,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return t, nil
}

// ListByGuide lists the guide's tours, newest first, excluding soft-deleted.
func (r *TourRepo) ListByGuide(ctx context.Context, guideID uuid.UUID) ([]domain.Tour, error) {
	const op = "postgres.TourRepo.ListByGuide"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+tourColumns+` FROM tours
		 WHERE guide_id = $1 AND deleted_at IS NULL
		 ORDER BY created_at DESC`,
		guideID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}
	defer rows.Close()

	var tours []domain.Tour
	for rows.Next() {
		t, err := scanTour(rows)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		tours = append(tours, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return tours, nil
}

// Start transitions a pending tour to active and stamps room_started_at.
// The single-active-tour-per-guide invariant is enforced by the partial
// unique index ux_tours_guide_active, so two concurrent starts cannot both
// commit.
//
// Returns:
//   - error: repository.ErrActiveTourExists if the guide owns another active tour.
//   - error: repository.ErrConflict if the tour is not in pending status.
//   - error: repository.ErrNotFound if the tour is absent or deleted.
func (r *TourRepo) Start(ctx context.Context, id, guideID uuid.UUID, startedAt time.Time) (*domain.Tour, error) {
	const op = "postgres.TourRepo.Start"

	db := r.handle()

	t, err := scanTour(db.QueryRow(ctx,
		`UPDATE tours
		 SET status = 'active', room_started_at = $3, updated_at = now()
		 WHERE id = $1 AND guide_id = $2 AND status = 'pending' AND deleted_at IS NULL
		 RETURNING `+tourColumns,
		id, guideID, startedAt,
	))
	if err == nil {
		return t, nil
	}

	if mapped := translateDBErr(err); !errors.Is(mapped, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s:%w", op, mapped)
	}

	// No row matched the guard. Distinguish "wrong status" from "no tour".
	cur, err := r.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}
	if cur.GuideID != guideID {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return cur, fmt.Errorf("%s:%w", op, repository.ErrConflict)
}

// RevertStart is the compensating action when the room connection that
// follows a successful start fails: the tour returns to pending and
// room_started_at is cleared.
func (r *TourRepo) RevertStart(ctx context.Context, id uuid.UUID) (*domain.Tour, error) {
	const op = "postgres.TourRepo.RevertStart"

	db := r.handle()

	t, err := scanTour(db.QueryRow(ctx,
		`UPDATE tours
		 SET status = 'pending', room_started_at = NULL, updated_at = now()
		 WHERE id = $1 AND status = 'active' AND deleted_at IS NULL
		 RETURNING `+tourColumns,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return t, nil
}

// End transitions an active tour to completed and stamps completed_at.
//
// Returns:
//   - *domain.Tour, true: the transition was applied now.
//   - *domain.Tour, false: the tour was already completed (idempotent no-op).
//   - error: repository.ErrConflict if the tour is pending or cancelled.
func (r *TourRepo) End(ctx context.Context, id uuid.UUID, completedAt time.Time) (*domain.Tour, bool, error) {
	const op = "postgres.TourRepo.End"

	db := r.handle()

	t, err := scanTour(db.QueryRow(ctx,
		`UPDATE tours
		 SET status = 'completed', completed_at = $2, updated_at = now()
		 WHERE id = $1 AND status = 'active' AND deleted_at IS NULL
		 RETURNING `+tourColumns,
		id, completedAt,
	))
	if err == nil {
		return t, true, nil
	}

	if mapped := translateDBErr(err); !errors.Is(mapped, repository.ErrNotFound) {
		return nil, false, fmt.Errorf("%s:%w", op, mapped)
	}

	cur, err := r.Get(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	// A manual end and the auto-end timer may race; the loser lands here.
	if cur.Status == domain.TourCompleted {
		return cur, false, nil
	}

	return cur, false, fmt.Errorf("%s:%w", op, repository.ErrConflict)
}

// Cancel transitions a pending tour to cancelled.
func (r *TourRepo) Cancel(ctx context.Context, id, guideID uuid.UUID) (*domain.Tour, error) {
	const op = "postgres.TourRepo.Cancel"

	db := r.handle()

	t, err := scanTour(db.QueryRow(ctx,
		`UPDATE tours
		 SET status = 'cancelled', updated_at = now()
		 WHERE id = $1 AND guide_id = $2 AND status = 'pending' AND deleted_at IS NULL
		 RETURNING `+tourColumns,
		id, guideID,
	))
	if err == nil {
		return t, nil
	}

	if mapped := translateDBErr(err); !errors.Is(mapped, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s:%w", op, mapped)
	}

	cur, err := r.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}
	if cur.GuideID != guideID {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return cur, fmt.Errorf("%s:%w", op, repository.ErrConflict)
}

// SoftDelete marks a completed or cancelled tour deleted. The row is kept;
// all reads exclude it from then on.
func (r *TourRepo) SoftDelete(ctx context.Context, id, guideID uuid.UUID) error {
	const op = "postgres.TourRepo.SoftDelete"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE tours
		 SET deleted_at = now(), updated_at = now()
		 WHERE id = $1 AND guide_id = $2 AND status IN ('completed', 'cancelled')
		   AND deleted_at IS NULL`,
		id, guideID,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		cur, err := r.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		if cur.GuideID != guideID {
			return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
		}
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	return nil
}

// SetRoomStarted applies the provider's room_started timestamp as a
// last-known value, so redelivery and reordering are harmless.
//
// Returns:
//   - error: repository.ErrNotFound if the tour is absent or deleted.
func (r *TourRepo) SetRoomStarted(ctx context.Context, id uuid.UUID, ts time.Time) error {
	const op = "postgres.TourRepo.SetRoomStarted"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE tours SET room_started_at = $2, updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL`,
		id, ts,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// SetRoomFinished applies the provider's room_finished timestamp.
func (r *TourRepo) SetRoomFinished(ctx context.Context, id uuid.UUID, ts time.Time) error {
	const op = "postgres.TourRepo.SetRoomFinished"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE tours SET room_finished_at = $2, updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL`,
		id, ts,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// SetGuideRoomJoined records when the guide's publisher joined the room.
func (r *TourRepo) SetGuideRoomJoined(ctx context.Context, id uuid.UUID, ts time.Time) error {
	const op = "postgres.TourRepo.SetGuideRoomJoined"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE tours SET guide_joined_room_at = $2, updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL`,
		id, ts,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// SetGuideRoomLeft records when the guide's publisher left the room.
func (r *TourRepo) SetGuideRoomLeft(ctx context.Context, id uuid.UUID, ts time.Time) error {
	const op = "postgres.TourRepo.SetGuideRoomLeft"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE tours SET guide_left_room_at = $2, updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL`,
		id, ts,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// RefreshParticipantCounts sets current_participants to the value carried by
// the provider event and recomputes total_participants as the number of
// participant rows. Rows are one per (tour, device) and never deleted, so the
// cumulative total never decreases; a rejoin clearing provider timestamps
// must not shrink it. Both are value sets, never increments, so the write
// commutes with redelivery.
func (r *TourRepo) RefreshParticipantCounts(ctx context.Context, id uuid.UUID, current int) error {
	const op = "postgres.TourRepo.RefreshParticipantCounts"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE tours
		 SET current_participants = $2,
		     total_participants = (
		       SELECT count(*) FROM tour_participants WHERE tour_id = $1
		     ),
		     updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL`,
		id, current,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// EndOverdue completes active tours whose room started more than maxAge ago
// and returns their IDs so the caller can fan out fresh snapshots. Safety
// net behind the client-side auto-end timer.
func (r *TourRepo) EndOverdue(ctx context.Context, maxAge time.Duration) ([]uuid.UUID, error) {
	const op = "postgres.TourRepo.EndOverdue"

	db := r.handle()

	rows, err := db.Query(ctx,
		`UPDATE tours
		 SET status = 'completed', completed_at = now(), updated_at = now()
		 WHERE status = 'active' AND deleted_at IS NULL
		   AND room_started_at IS NOT NULL
		   AND room_started_at <= now() - ($1 * interval '1 second')
		 RETURNING id`,
		maxAge.Seconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return ids, nil
}
