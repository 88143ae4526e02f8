package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/voxtour/voxtour-go/internal/domain"
)

type FeedbackRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *FeedbackRepo) With(db DB) *FeedbackRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *FeedbackRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// UpsertRating stores one rating per (tour, device). A second submission from
// the same device replaces the first instead of creating another row.
func (r *FeedbackRepo) UpsertRating(
	ctx context.Context,
	tourID uuid.UUID,
	deviceID string,
	rating int,
	comment string,
) (*domain.Feedback, error) {
	const op = "postgres.FeedbackRepo.UpsertRating"

	db := r.handle()

	var f domain.Feedback
	err := db.QueryRow(ctx,
		`INSERT INTO tour_feedback (id, tour_id, device_id, rating, comment)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (tour_id, device_id) DO UPDATE
		 SET rating = EXCLUDED.rating,
		     comment = EXCLUDED.comment,
		     updated_at = now()
		 RETURNING id, tour_id, device_id, rating, comment, created_at, updated_at`,
		uuid.New(), tourID, deviceID, rating, comment,
	).Scan(&f.ID, &f.TourID, &f.DeviceID, &f.Rating, &f.Comment, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &f, nil
}
