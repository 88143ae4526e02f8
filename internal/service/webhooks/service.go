package webhooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/voxtour/voxtour-go/internal/domain"
	"github.com/voxtour/voxtour-go/internal/repository"
)

// Event names emitted by the audio-room provider.
const (
	EventRoomStarted       = "room_started"
	EventRoomFinished      = "room_finished"
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
)

const (
	roomPrefix     = "tour-"
	guidePrefix    = "guide-"
	listenerPrefix = "listener-"
)

// Event is one provider notification. Delivery is at-least-once and may be
// reordered, so every write derived from it must be a last-value set.
type Event struct {
	Event       string          `json:"event"`
	Room        RoomRef         `json:"room"`
	Participant *ParticipantRef `json:"participant,omitempty"`
	CreatedAt   int64           `json:"createdAt"`
}

type RoomRef struct {
	Name            string `json:"name"`
	NumParticipants int    `json:"numParticipants"`
}

type ParticipantRef struct {
	Identity string `json:"identity"`
}

// TourWriter is the subset of tour storage the processor touches.
type TourWriter interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Tour, error)
	SetRoomStarted(ctx context.Context, id uuid.UUID, ts time.Time) error
	SetRoomFinished(ctx context.Context, id uuid.UUID, ts time.Time) error
	SetGuideRoomJoined(ctx context.Context, id uuid.UUID, ts time.Time) error
	SetGuideRoomLeft(ctx context.Context, id uuid.UUID, ts time.Time) error
	RefreshParticipantCounts(ctx context.Context, id uuid.UUID, current int) error
}

// ParticipantWriter applies provider timestamps to (tour, device) rows.
type ParticipantWriter interface {
	SetRoomJoined(ctx context.Context, tourID uuid.UUID, deviceID string, ts time.Time) error
	SetRoomLeft(ctx context.Context, tourID uuid.UUID, deviceID string, ts time.Time) error
}

// SnapshotPublisher fans the updated row out after a successful write.
type SnapshotPublisher interface {
	PublishTourSnapshot(ctx context.Context, t *domain.Tour) error
}

// Service ingests provider webhooks. Instances are stateless; concurrent
// events for the same tour are safe because every write sets a field to a
// value carried in the event.
type Service struct {
	tours        TourWriter
	participants ParticipantWriter
	pubsub       SnapshotPublisher
	logger       *slog.Logger
}

func New(
	tours TourWriter,
	participants ParticipantWriter,
	pubsub SnapshotPublisher,
	logger *slog.Logger,
) *Service {
	return &Service{
		tours:        tours,
		participants: participants,
		pubsub:       pubsub,
		logger:       logger,
	}
}

// Process applies one provider event.
//
// Returns:
//   - error: webhooks.ErrMalformedRoom if the room name does not parse; no write happens.
//   - error: webhooks.ErrMalformedIdentity for an unparseable participant identity.
//   - error: webhooks.ErrTourNotFound if the room maps to no known tour.
//
// Track-level and other unrecognized event names are accepted and ignored.
func (s *Service) Process(ctx context.Context, ev Event) error {
	const op = "service.webhooks.Process"

	switch ev.Event {
	case EventRoomStarted, EventRoomFinished, EventParticipantJoined, EventParticipantLeft:
	default:
		return nil
	}

	tourID, err := ParseRoomName(ev.Room.Name)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	ts := eventTime(ev)

	switch ev.Event {
	case EventRoomStarted:
		err = s.tours.SetRoomStarted(ctx, tourID, ts)
	case EventRoomFinished:
		err = s.tours.SetRoomFinished(ctx, tourID, ts)
	case EventParticipantJoined:
		err = s.applyParticipant(ctx, tourID, ev, ts, true)
	case EventParticipantLeft:
		err = s.applyParticipant(ctx, tourID, ev, ts, false)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s:%w", op, ErrTourNotFound)
		}
		return fmt.Errorf("%s:%w", op, err)
	}

	s.publish(ctx, tourID)

	return nil
}

func (s *Service) applyParticipant(
	ctx context.Context,
	tourID uuid.UUID,
	ev Event,
	ts time.Time,
	joined bool,
) error {
	if ev.Participant == nil {
		return ErrMissingParticipant
	}

	id, err := ParseIdentity(ev.Participant.Identity)
	if err != nil {
		return err
	}

	switch id.Role {
	case domain.RoleGuide:
		if id.TourID != tourID {
			return ErrMalformedIdentity
		}
		if joined {
			return s.tours.SetGuideRoomJoined(ctx, tourID, ts)
		}
		return s.tours.SetGuideRoomLeft(ctx, tourID, ts)

	default:
		if joined {
			if err := s.participants.SetRoomJoined(ctx, tourID, id.DeviceID, ts); err != nil {
				return err
			}
		} else {
			if err := s.participants.SetRoomLeft(ctx, tourID, id.DeviceID, ts); err != nil {
				return err
			}
		}
		return s.tours.RefreshParticipantCounts(ctx, tourID, ev.Room.NumParticipants)
	}
}

func (s *Service) publish(ctx context.Context, tourID uuid.UUID) {
	if s.pubsub == nil {
		return
	}

	t, err := s.tours.Get(ctx, tourID)
	if err != nil {
		s.logger.Warn("tour not readable after webhook write", "tour_id", tourID, "error", err)
		return
	}

	if err := s.pubsub.PublishTourSnapshot(ctx, t); err != nil {
		s.logger.Warn("failed to publish tour snapshot", "tour_id", tourID, "error", err)
	}
}

// ParseRoomName extracts the tour ID from a room named tour-{uuid}.
func ParseRoomName(name string) (uuid.UUID, error) {
	raw, ok := strings.CutPrefix(name, roomPrefix)
	if !ok {
		return uuid.Nil, ErrMalformedRoom
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrMalformedRoom
	}

	return id, nil
}

// Identity is a parsed participant identity string.
type Identity struct {
	Role     domain.Role
	TourID   uuid.UUID // guide identities embed the tour they publish to
	DeviceID string    // listener identities carry the durable device ID
}

// ParseIdentity parses guide-{tourId} and listener-{deviceId} identities.
func ParseIdentity(identity string) (Identity, error) {
	if raw, ok := strings.CutPrefix(identity, guidePrefix); ok {
		id, err := uuid.Parse(raw)
		if err != nil {
			return Identity{}, ErrMalformedIdentity
		}
		return Identity{Role: domain.RoleGuide, TourID: id}, nil
	}

	if raw, ok := strings.CutPrefix(identity, listenerPrefix); ok && raw != "" {
		return Identity{Role: domain.RoleGuest, DeviceID: raw}, nil
	}

	return Identity{}, ErrMalformedIdentity
}

// RoomName builds the provider room name for a tour.
func RoomName(tourID uuid.UUID) string {
	return roomPrefix + tourID.String()
}

// GuideIdentity builds the provider identity for a tour's publisher.
func GuideIdentity(tourID uuid.UUID) string {
	return guidePrefix + tourID.String()
}

// ListenerIdentity builds the provider identity for a listening device.
func ListenerIdentity(deviceID string) string {
	return listenerPrefix + deviceID
}

func eventTime(ev Event) time.Time {
	if ev.CreatedAt > 0 {
		return time.Unix(ev.CreatedAt, 0).UTC()
	}
	return time.Now().UTC()
}
