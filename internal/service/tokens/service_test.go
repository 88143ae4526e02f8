package tokens_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/voxtour/voxtour-go/internal/domain"
	"github.com/voxtour/voxtour-go/internal/repository"
	"github.com/voxtour/voxtour-go/internal/service/tokens"
	"github.com/voxtour/voxtour-go/internal/service/webhooks"
)

type fakeTourGetter struct {
	tours map[uuid.UUID]*domain.Tour
}

func (f *fakeTourGetter) Get(_ context.Context, id uuid.UUID) (*domain.Tour, error) {
	t, ok := f.tours[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

type fakeParticipantGetter struct {
	rows map[string]bool // deviceID -> joined
}

func (f *fakeParticipantGetter) Get(_ context.Context, tourID uuid.UUID, deviceID string) (*domain.Participant, error) {
	if !f.rows[deviceID] {
		return nil, repository.ErrNotFound
	}
	return &domain.Participant{TourID: tourID, DeviceID: deviceID}, nil
}

const (
	roomSecret    = "room-secret"
	sessionSecret = "session-secret"
)

func newService(t *domain.Tour, joinedDevices ...string) *tokens.Service {
	tg := &fakeTourGetter{tours: map[uuid.UUID]*domain.Tour{}}
	if t != nil {
		tg.tours[t.ID] = t
	}
	pg := &fakeParticipantGetter{rows: map[string]bool{}}
	for _, d := range joinedDevices {
		pg.rows[d] = true
	}
	return tokens.New(tg, pg, tokens.Config{
		RoomSecret:    roomSecret,
		SessionSecret: sessionSecret,
	})
}

type roomClaims struct {
	jwt.RegisteredClaims
	Video struct {
		Room         string `json:"room"`
		RoomJoin     bool   `json:"roomJoin"`
		CanPublish   bool   `json:"canPublish"`
		CanSubscribe bool   `json:"canSubscribe"`
	} `json:"video"`
}

func parseRoomToken(t *testing.T, token string) roomClaims {
	t.Helper()

	var claims roomClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(roomSecret), nil
	})
	require.NoError(t, err)
	require.True(t, parsed.Valid)
	return claims
}

func sessionBearer(t *testing.T, guideID uuid.UUID) string {
	t.Helper()

	claims := jwt.RegisteredClaims{
		Subject:   guideID.String(),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	bearer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(sessionSecret))
	require.NoError(t, err)
	return bearer
}

func TestRoomToken_GuideGetsPublishGrant(t *testing.T) {
	guideID := uuid.New()
	tour := &domain.Tour{ID: uuid.New(), GuideID: guideID, Status: domain.TourActive}
	svc := newService(tour)

	token, err := svc.RoomToken(
		context.Background(),
		&domain.Session{GuideID: guideID},
		tour.ID,
		domain.RoleGuide,
		"",
	)
	require.NoError(t, err)

	claims := parseRoomToken(t, token)
	require.Equal(t, webhooks.RoomName(tour.ID), claims.Video.Room)
	require.Equal(t, webhooks.GuideIdentity(tour.ID), claims.Subject)
	require.True(t, claims.Video.RoomJoin)
	require.True(t, claims.Video.CanPublish)
	require.True(t, claims.Video.CanSubscribe)
}

func TestRoomToken_GuideRequiresOwnership(t *testing.T) {
	tour := &domain.Tour{ID: uuid.New(), GuideID: uuid.New(), Status: domain.TourActive}
	svc := newService(tour)

	_, err := svc.RoomToken(
		context.Background(),
		&domain.Session{GuideID: uuid.New()},
		tour.ID,
		domain.RoleGuide,
		"",
	)
	require.ErrorIs(t, err, tokens.ErrUnauthorized)

	_, err = svc.RoomToken(context.Background(), nil, tour.ID, domain.RoleGuide, "")
	require.ErrorIs(t, err, tokens.ErrUnauthorized)
}

func TestRoomToken_GuestGetsSubscribeOnlyGrant(t *testing.T) {
	tour := &domain.Tour{ID: uuid.New(), GuideID: uuid.New(), Status: domain.TourActive}
	svc := newService(tour, "device-1")

	token, err := svc.RoomToken(context.Background(), nil, tour.ID, domain.RoleGuest, "device-1")
	require.NoError(t, err)

	claims := parseRoomToken(t, token)
	require.Equal(t, webhooks.ListenerIdentity("device-1"), claims.Subject)
	require.True(t, claims.Video.RoomJoin)
	require.False(t, claims.Video.CanPublish)
	require.True(t, claims.Video.CanSubscribe)
}

func TestRoomToken_GuestWithoutJoinIsRejected(t *testing.T) {
	tour := &domain.Tour{ID: uuid.New(), GuideID: uuid.New(), Status: domain.TourActive}
	svc := newService(tour)

	_, err := svc.RoomToken(context.Background(), nil, tour.ID, domain.RoleGuest, "device-9")
	require.ErrorIs(t, err, tokens.ErrUnauthorized)
}

func TestRoomToken_GuestNeedsDeviceID(t *testing.T) {
	tour := &domain.Tour{ID: uuid.New(), GuideID: uuid.New(), Status: domain.TourActive}
	svc := newService(tour)

	_, err := svc.RoomToken(context.Background(), nil, tour.ID, domain.RoleGuest, "")
	require.ErrorIs(t, err, tokens.ErrMissingDeviceID)
}

func TestRoomToken_UnknownTour(t *testing.T) {
	svc := newService(nil)

	_, err := svc.RoomToken(context.Background(), nil, uuid.New(), domain.RoleGuest, "device-1")
	require.ErrorIs(t, err, tokens.ErrTourNotFound)
}

func TestRoomToken_UnknownRole(t *testing.T) {
	tour := &domain.Tour{ID: uuid.New(), GuideID: uuid.New()}
	svc := newService(tour)

	_, err := svc.RoomToken(context.Background(), nil, tour.ID, domain.Role("moderator"), "x")
	require.ErrorIs(t, err, tokens.ErrInvalidRole)
}

func TestParseSession_RoundTrip(t *testing.T) {
	svc := newService(nil)
	guideID := uuid.New()

	sess, err := svc.ParseSession(sessionBearer(t, guideID))
	require.NoError(t, err)
	require.Equal(t, guideID, sess.GuideID)
}

func TestParseSession_RejectsBadTokens(t *testing.T) {
	svc := newService(nil)

	_, err := svc.ParseSession("not-a-jwt")
	require.ErrorIs(t, err, tokens.ErrInvalidSession)

	// wrong key
	claims := jwt.RegisteredClaims{Subject: uuid.NewString()}
	bearer, signErr := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte("some-other-secret"))
	require.NoError(t, signErr)

	_, err = svc.ParseSession(bearer)
	require.ErrorIs(t, err, tokens.ErrInvalidSession)

	// subject is not a guide ID
	claims = jwt.RegisteredClaims{Subject: "admin"}
	bearer, signErr = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(sessionSecret))
	require.NoError(t, signErr)

	_, err = svc.ParseSession(bearer)
	require.ErrorIs(t, err, tokens.ErrInvalidSession)
}
