package tours

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/voxtour/voxtour-go/internal/domain"
	"github.com/voxtour/voxtour-go/internal/repository"
)

// AutoEndAfter is how long a tour may stay active before the sweeper
// completes it. Mirrors the client-side auto-end deadline.
const AutoEndAfter = 6 * time.Hour

// TourStore is the storage the state machine runs against. Status guards are
// enforced inside the store's single-statement updates, never by a separate
// read before the write.
type TourStore interface {
	Create(ctx context.Context, t *domain.Tour) (*domain.Tour, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Tour, error)
	GetByCode(ctx context.Context, code string) (*domain.Tour, error)
	ListByGuide(ctx context.Context, guideID uuid.UUID) ([]domain.Tour, error)
	Start(ctx context.Context, id, guideID uuid.UUID, startedAt time.Time) (*domain.Tour, error)
	RevertStart(ctx context.Context, id uuid.UUID) (*domain.Tour, error)
	End(ctx context.Context, id uuid.UUID, completedAt time.Time) (*domain.Tour, bool, error)
	Cancel(ctx context.Context, id, guideID uuid.UUID) (*domain.Tour, error)
	SoftDelete(ctx context.Context, id, guideID uuid.UUID) error
	EndOverdue(ctx context.Context, maxAge time.Duration) ([]uuid.UUID, error)
}

// SnapshotPublisher fans the current full row out to every subscriber of the
// tour's sync topic.
type SnapshotPublisher interface {
	PublishTourSnapshot(ctx context.Context, t *domain.Tour) error
}

type Config struct {
	CodeLength int
}

type Service struct {
	store  TourStore
	pubsub SnapshotPublisher
	logger *slog.Logger
	cfg    Config
}

func New(store TourStore, pubsub SnapshotPublisher, logger *slog.Logger, cfg Config) *Service {
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = 6
	}

	return &Service{
		store:  store,
		pubsub: pubsub,
		logger: logger,
		cfg:    cfg,
	}
}

// Create inserts a new pending tour owned by the session's guide, generating
// a unique join code with a few collision retries.
func (s *Service) Create(ctx context.Context, sess domain.Session, title string) (*domain.Tour, error) {
	const op = "service.tours.Create"

	for attempt := 0; attempt < 5; attempt++ {
		t := &domain.Tour{
			ID:         uuid.New(),
			GuideID:    sess.GuideID,
			Title:      title,
			UniqueCode: randomCode(s.cfg.CodeLength),
		}

		created, err := s.store.Create(ctx, t)
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				continue
			}
			return nil, fmt.Errorf("%s:%w", op, err)
		}

		return created, nil
	}

	return nil, fmt.Errorf("%s:%w", op, ErrCodeExhausted)
}

// Get retrieves a tour, excluding soft-deleted ones.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Tour, error) {
	const op = "service.tours.Get"

	t, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrTourNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return t, nil
}

// GetByCode resolves a human-entered join code.
func (s *Service) GetByCode(ctx context.Context, code string) (*domain.Tour, error) {
	const op = "service.tours.GetByCode"

	t, err := s.store.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrTourNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return t, nil
}

// ListByGuide lists the guide's own tours.
func (s *Service) ListByGuide(ctx context.Context, sess domain.Session) ([]domain.Tour, error) {
	const op = "service.tours.ListByGuide"

	tours, err := s.store.ListByGuide(ctx, sess.GuideID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return tours, nil
}

// Start transitions the tour from pending to active and stamps
// room_started_at. Storage enforces that the guide has no other active tour.
//
// Returns:
//   - error: tours.ErrAlreadyActive if another tour of the guide is active.
//   - error: tours.ErrInvalidStatus if the tour is not pending.
//   - error: tours.ErrTourNotFound if the tour is absent, deleted, or not owned.
func (s *Service) Start(ctx context.Context, sess domain.Session, id uuid.UUID) (*domain.Tour, error) {
	const op = "service.tours.Start"

	t, err := s.store.Start(ctx, id, sess.GuideID, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrActiveTourExists):
			return nil, fmt.Errorf("%s:%w", op, ErrAlreadyActive)
		case errors.Is(err, repository.ErrConflict):
			return nil, fmt.Errorf("%s:%w", op, ErrInvalidStatus)
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%s:%w", op, ErrTourNotFound)
		default:
			return nil, fmt.Errorf("%s:%w", op, err)
		}
	}

	s.publish(ctx, t)

	return t, nil
}

// RevertStart is the compensating action for a start whose room connection
// failed afterwards: the tour returns to pending. Start and the room connect
// are not atomic, so this is driven by the caller.
func (s *Service) RevertStart(ctx context.Context, id uuid.UUID) (*domain.Tour, error) {
	const op = "service.tours.RevertStart"

	t, err := s.store.RevertStart(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrTourNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.publish(ctx, t)

	return t, nil
}

// End completes an active tour. Ending an already-completed tour is a no-op
// returning the current record: the manual end and the auto-end timer may
// both call this.
func (s *Service) End(ctx context.Context, id uuid.UUID) (*domain.Tour, error) {
	const op = "service.tours.End"

	t, applied, err := s.store.End(ctx, id, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, fmt.Errorf("%s:%w", op, ErrInvalidStatus)
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%s:%w", op, ErrTourNotFound)
		default:
			return nil, fmt.Errorf("%s:%w", op, err)
		}
	}

	if applied {
		s.publish(ctx, t)
	}

	return t, nil
}

// Cancel moves a pending tour to cancelled. Active and completed tours
// cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, sess domain.Session, id uuid.UUID) (*domain.Tour, error) {
	const op = "service.tours.Cancel"

	t, err := s.store.Cancel(ctx, id, sess.GuideID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, fmt.Errorf("%s:%w", op, ErrInvalidStatus)
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%s:%w", op, ErrTourNotFound)
		default:
			return nil, fmt.Errorf("%s:%w", op, err)
		}
	}

	s.publish(ctx, t)

	return t, nil
}

// SoftDelete marks a terminal tour deleted; it disappears from all reads.
func (s *Service) SoftDelete(ctx context.Context, sess domain.Session, id uuid.UUID) error {
	const op = "service.tours.SoftDelete"

	if err := s.store.SoftDelete(ctx, id, sess.GuideID); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return fmt.Errorf("%s:%w", op, ErrInvalidStatus)
		case errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("%s:%w", op, ErrTourNotFound)
		default:
			return fmt.Errorf("%s:%w", op, err)
		}
	}

	return nil
}

// EndOverdue completes tours that have been active longer than AutoEndAfter
// and fans out their fresh snapshots. Run periodically by the app.
func (s *Service) EndOverdue(ctx context.Context) (int, error) {
	const op = "service.tours.EndOverdue"

	ids, err := s.store.EndOverdue(ctx, AutoEndAfter)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	for _, id := range ids {
		t, err := s.store.Get(ctx, id)
		if err != nil {
			s.logger.Warn("auto-ended tour vanished before publish", "tour_id", id, "error", err)
			continue
		}
		s.publish(ctx, t)
	}

	return len(ids), nil
}

func (s *Service) publish(ctx context.Context, t *domain.Tour) {
	if s.pubsub == nil {
		return
	}
	if err := s.pubsub.PublishTourSnapshot(ctx, t); err != nil {
		s.logger.Warn("failed to publish tour snapshot", "tour_id", t.ID, "error", err)
	}
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func randomCode(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b)
}
