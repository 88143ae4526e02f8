package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/voxtour/voxtour-go/internal/domain"
	"github.com/voxtour/voxtour-go/internal/repository"
)

type ParticipantRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *ParticipantRepo) With(db DB) *ParticipantRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *ParticipantRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const participantColumns = `id, tour_id, device_id, join_time, leave_time,
	room_joined_at, room_left_at`

func scanParticipant(row pgx.Row) (*domain.Participant, error) {
	var p domain.Participant
	err := row.Scan(
		&p.ID, &p.TourID, &p.DeviceID, &p.JoinTime, &p.LeaveTime,
		&p.RoomJoinedAt, &p.RoomLeftAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertJoin records a join for a (tour, device) pair. A rejoin reuses the
// existing row: leave_time and the provider timestamps are cleared.
func (r *ParticipantRepo) UpsertJoin(
	ctx context.Context,
	tourID uuid.UUID,
	deviceID string,
	joinedAt time.Time,
) (*domain.Participant, error) {
	const op = "postgres.ParticipantRepo.UpsertJoin"

	db := r.handle()

	p, err := scanParticipant(db.QueryRow(ctx,
		`INSERT INTO tour_participants (id, tour_id, device_id, join_time)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (tour_id, device_id) DO UPDATE
		 SET join_time = EXCLUDED.join_time,
		     leave_time = NULL,
		     room_joined_at = NULL,
		     room_left_at = NULL
		 RETURNING `+participantColumns,
		uuid.New(), tourID, deviceID, joinedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return p, nil
}

// SetLeave stamps leave_time for the pair.
//
// Returns:
//   - error: repository.ErrNotFound if no row exists for the pair.
func (r *ParticipantRepo) SetLeave(
	ctx context.Context,
	tourID uuid.UUID,
	deviceID string,
	leftAt time.Time,
) error {
	const op = "postgres.ParticipantRepo.SetLeave"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE tour_participants SET leave_time = $3
		 WHERE tour_id = $1 AND device_id = $2`,
		tourID, deviceID, leftAt,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// Get retrieves the participant row for a (tour, device) pair.
func (r *ParticipantRepo) Get(ctx context.Context, tourID uuid.UUID, deviceID string) (*domain.Participant, error) {
	const op = "postgres.ParticipantRepo.Get"

	db := r.handle()

	p, err := scanParticipant(db.QueryRow(ctx,
		`SELECT `+participantColumns+`
		 FROM tour_participants WHERE tour_id = $1 AND device_id = $2`,
		tourID, deviceID,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return p, nil
}

// List returns all participant rows for a tour, oldest join first.
func (r *ParticipantRepo) List(ctx context.Context, tourID uuid.UUID) ([]domain.Participant, error) {
	const op = "postgres.ParticipantRepo.List"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+participantColumns+`
		 FROM tour_participants WHERE tour_id = $1
		 ORDER BY join_time ASC`,
		tourID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}

// SetRoomJoined applies the provider's participant_joined timestamp for the
// device as a last-known value.
func (r *ParticipantRepo) SetRoomJoined(
	ctx context.Context,
	tourID uuid.UUID,
	deviceID string,
	ts time.Time,
) error {
	const op = "postgres.ParticipantRepo.SetRoomJoined"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE tour_participants SET room_joined_at = $3
		 WHERE tour_id = $1 AND device_id = $2`,
		tourID, deviceID, ts,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// SetRoomLeft applies the provider's participant_left timestamp for the
// device. Redelivery rewrites the same value. leave_time belongs to the
// client's explicit leave and is not touched here.
func (r *ParticipantRepo) SetRoomLeft(
	ctx context.Context,
	tourID uuid.UUID,
	deviceID string,
	ts time.Time,
) error {
	const op = "postgres.ParticipantRepo.SetRoomLeft"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE tour_participants SET room_left_at = $3
		 WHERE tour_id = $1 AND device_id = $2`,
		tourID, deviceID, ts,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}
