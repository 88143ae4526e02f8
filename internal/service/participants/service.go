package participants

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/voxtour/voxtour-go/internal/domain"
	"github.com/voxtour/voxtour-go/internal/repository"
	postgresrepo "github.com/voxtour/voxtour-go/internal/repository/postgres"
	redisrepo "github.com/voxtour/voxtour-go/internal/repository/redis"
	"github.com/voxtour/voxtour-go/internal/uow"
)

type Service struct {
	store  *postgresrepo.Store
	cache  *redisrepo.Cache
	uow    *uow.UoW
	logger *slog.Logger
}

func New(
	store *postgresrepo.Store,
	cache *redisrepo.Cache,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:  store,
		cache:  cache,
		uow:    uow.NewUoW(store),
		logger: logger,
	}
}

// Join registers a device on a tour. One row exists per (tour, device);
// a rejoin reuses it and clears leave_time and the provider timestamps.
// Joining is allowed while the tour is pending or active.
func (s *Service) Join(ctx context.Context, tourID uuid.UUID, deviceID string) (*domain.Participant, error) {
	const op = "service.participants.Join"

	var p *domain.Participant

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		t, err := s.store.Tours().With(tx).Get(ctx, tourID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrTourNotFound)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		if t.Status.IsTerminal() {
			return fmt.Errorf("%s:%w", op, ErrTourNotJoinable)
		}

		joined, err := s.store.Participants().
			With(tx).
			UpsertJoin(ctx, tourID, deviceID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		p = joined

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateTour(ctx, t.ID, t.UniqueCode)
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return p, nil
}

// Leave stamps leave_time for the device. The participant row is retained
// for accounting and rating eligibility.
func (s *Service) Leave(ctx context.Context, tourID uuid.UUID, deviceID string) error {
	const op = "service.participants.Leave"

	if err := s.store.Participants().SetLeave(ctx, tourID, deviceID, time.Now().UTC()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s:%w", op, ErrParticipantNotFound)
		}
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// Get returns the participant row for a (tour, device) pair.
func (s *Service) Get(ctx context.Context, tourID uuid.UUID, deviceID string) (*domain.Participant, error) {
	const op = "service.participants.Get"

	p, err := s.store.Participants().Get(ctx, tourID, deviceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrParticipantNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return p, nil
}

// List returns all participant rows for a tour.
func (s *Service) List(ctx context.Context, tourID uuid.UUID) ([]domain.Participant, error) {
	const op = "service.participants.List"

	out, err := s.store.Participants().List(ctx, tourID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// Count answers "how many guests right now" from the durable counters.
// While the tour is active the provider-sourced current_participants counter
// is authoritative; once completed the live roster no longer exists, so the
// cumulative distinct-device total is reported instead. The two numbers
// answer different questions and are deliberately not unified.
func Count(t *domain.Tour) int {
	switch t.Status {
	case domain.TourActive:
		return t.CurrentParticipants
	case domain.TourCompleted:
		return t.TotalParticipants
	default:
		return 0
	}
}

// RateTour upserts the device's rating for a tour: a device may change its
// rating but never hold two. Rating opens once the tour is active.
func (s *Service) RateTour(
	ctx context.Context,
	tourID uuid.UUID,
	deviceID string,
	rating int,
	comment string,
) (*domain.Feedback, error) {
	const op = "service.participants.RateTour"

	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidRating)
	}

	t, err := s.store.Tours().Get(ctx, tourID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrTourNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if t.Status == domain.TourPending || t.Status == domain.TourCancelled {
		return nil, fmt.Errorf("%s:%w", op, ErrRatingNotOpen)
	}

	if _, err := s.store.Participants().Get(ctx, tourID, deviceID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrParticipantNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	f, err := s.store.Feedback().UpsertRating(ctx, tourID, deviceID, rating, comment)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return f, nil
}
