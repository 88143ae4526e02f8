package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/voxtour/voxtour-go/internal/domain"
	"github.com/voxtour/voxtour-go/internal/repository"
	"github.com/voxtour/voxtour-go/internal/service/webhooks"
)

type Config struct {
	RoomSecret    string
	SessionSecret string
	RoomTokenTTL  time.Duration
}

// TourGetter resolves tours for ownership checks.
type TourGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Tour, error)
}

// ParticipantGetter verifies that a device has a participant row. A guest
// whose join write never completed gets no token.
type ParticipantGetter interface {
	Get(ctx context.Context, tourID uuid.UUID, deviceID string) (*domain.Participant, error)
}

type Service struct {
	tours        TourGetter
	participants ParticipantGetter
	cfg          Config
}

func New(tours TourGetter, participants ParticipantGetter, cfg Config) *Service {
	if cfg.RoomTokenTTL <= 0 {
		cfg.RoomTokenTTL = 6 * time.Hour
	}

	return &Service{
		tours:        tours,
		participants: participants,
		cfg:          cfg,
	}
}

// roomClaims is the room provider's token shape: a registered claim set plus
// a grant naming the room and the allowed directions.
type roomClaims struct {
	jwt.RegisteredClaims
	Video roomGrant `json:"video"`
}

type roomGrant struct {
	Room         string `json:"room"`
	RoomJoin     bool   `json:"roomJoin"`
	CanPublish   bool   `json:"canPublish"`
	CanSubscribe bool   `json:"canSubscribe"`
}

// RoomToken mints a short-lived signed credential scoped to the tour's room:
// publish+subscribe for the guide, subscribe-only for a guest. The session
// is required for guide tokens; guests authenticate by their participant row.
//
// Returns:
//   - error: tokens.ErrUnauthorized if the session does not own the tour, or
//     the guest device has no participant row.
//   - error: tokens.ErrMissingDeviceID for a guest request without a device.
func (s *Service) RoomToken(
	ctx context.Context,
	sess *domain.Session,
	tourID uuid.UUID,
	role domain.Role,
	deviceID string,
) (string, error) {
	const op = "service.tokens.RoomToken"

	t, err := s.tours.Get(ctx, tourID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("%s:%w", op, ErrTourNotFound)
		}
		return "", fmt.Errorf("%s:%w", op, err)
	}

	var sub string
	var grant roomGrant

	switch role {
	case domain.RoleGuide:
		if sess == nil || sess.GuideID != t.GuideID {
			return "", fmt.Errorf("%s:%w", op, ErrUnauthorized)
		}
		sub = webhooks.GuideIdentity(tourID)
		grant = roomGrant{
			Room:         webhooks.RoomName(tourID),
			RoomJoin:     true,
			CanPublish:   true,
			CanSubscribe: true,
		}

	case domain.RoleGuest:
		if deviceID == "" {
			return "", fmt.Errorf("%s:%w", op, ErrMissingDeviceID)
		}
		if _, err := s.participants.Get(ctx, tourID, deviceID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return "", fmt.Errorf("%s:%w", op, ErrUnauthorized)
			}
			return "", fmt.Errorf("%s:%w", op, err)
		}
		sub = webhooks.ListenerIdentity(deviceID)
		grant = roomGrant{
			Room:         webhooks.RoomName(tourID),
			RoomJoin:     true,
			CanPublish:   false,
			CanSubscribe: true,
		}

	default:
		return "", fmt.Errorf("%s:%w", op, ErrInvalidRole)
	}

	now := time.Now()
	claims := roomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.RoomTokenTTL)),
		},
		Video: grant,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(s.cfg.RoomSecret))
	if err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}

	return token, nil
}

type sessionClaims struct {
	jwt.RegisteredClaims
}

// ParseSession verifies a guide session bearer token and returns an explicit
// session value for threading through service operations.
func (s *Service) ParseSession(bearer string) (domain.Session, error) {
	const op = "service.tokens.ParseSession"

	var claims sessionClaims
	token, err := jwt.ParseWithClaims(bearer, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.SessionSecret), nil
	})
	if err != nil || !token.Valid {
		return domain.Session{}, fmt.Errorf("%s:%w", op, ErrInvalidSession)
	}

	guideID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return domain.Session{}, fmt.Errorf("%s:%w", op, ErrInvalidSession)
	}

	return domain.Session{GuideID: guideID}, nil
}
