package webhooks_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/voxtour/voxtour-go/internal/domain"
	"github.com/voxtour/voxtour-go/internal/repository"
	"github.com/voxtour/voxtour-go/internal/service/webhooks"
)

type tourState struct {
	roomStartedAt    *time.Time
	roomFinishedAt   *time.Time
	guideJoinedAt    *time.Time
	guideLeftAt      *time.Time
	currentCount     int
	totalCount       int
	refreshedCurrent []int // every value passed to RefreshParticipantCounts
}

type fakeTourWriter struct {
	tours        map[uuid.UUID]*tourState
	participants *fakeParticipantWriter
}

func newFakeTourWriter(ids ...uuid.UUID) *fakeTourWriter {
	f := &fakeTourWriter{tours: map[uuid.UUID]*tourState{}}
	for _, id := range ids {
		f.tours[id] = &tourState{}
	}
	return f
}

func (f *fakeTourWriter) state(id uuid.UUID) (*tourState, error) {
	t, ok := f.tours[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t, nil
}

func (f *fakeTourWriter) Get(_ context.Context, id uuid.UUID) (*domain.Tour, error) {
	t, err := f.state(id)
	if err != nil {
		return nil, err
	}
	return &domain.Tour{
		ID:                  id,
		Status:              domain.TourActive,
		RoomStartedAt:       t.roomStartedAt,
		CurrentParticipants: t.currentCount,
		UpdatedAt:           time.Now().UTC(),
	}, nil
}

func (f *fakeTourWriter) SetRoomStarted(_ context.Context, id uuid.UUID, ts time.Time) error {
	t, err := f.state(id)
	if err != nil {
		return err
	}
	t.roomStartedAt = &ts
	return nil
}

func (f *fakeTourWriter) SetRoomFinished(_ context.Context, id uuid.UUID, ts time.Time) error {
	t, err := f.state(id)
	if err != nil {
		return err
	}
	t.roomFinishedAt = &ts
	return nil
}

func (f *fakeTourWriter) SetGuideRoomJoined(_ context.Context, id uuid.UUID, ts time.Time) error {
	t, err := f.state(id)
	if err != nil {
		return err
	}
	t.guideJoinedAt = &ts
	return nil
}

func (f *fakeTourWriter) SetGuideRoomLeft(_ context.Context, id uuid.UUID, ts time.Time) error {
	t, err := f.state(id)
	if err != nil {
		return err
	}
	t.guideLeftAt = &ts
	return nil
}

// RefreshParticipantCounts mirrors the SQL recompute: current comes from the
// event, total is the number of participant rows regardless of their
// provider timestamps.
func (f *fakeTourWriter) RefreshParticipantCounts(_ context.Context, id uuid.UUID, current int) error {
	t, err := f.state(id)
	if err != nil {
		return err
	}
	t.currentCount = current
	t.totalCount = f.participants.countRows(id)
	t.refreshedCurrent = append(t.refreshedCurrent, current)
	return nil
}

type participantKey struct {
	tourID   uuid.UUID
	deviceID string
}

type participantRow struct {
	roomJoinedAt *time.Time
	roomLeftAt   *time.Time
}

type fakeParticipantWriter struct {
	rows map[participantKey]*participantRow
}

func newFakeParticipantWriter() *fakeParticipantWriter {
	return &fakeParticipantWriter{rows: map[participantKey]*participantRow{}}
}

func (f *fakeParticipantWriter) row(k participantKey) *participantRow {
	r, ok := f.rows[k]
	if !ok {
		r = &participantRow{}
		f.rows[k] = r
	}
	return r
}

// rejoin clears the provider timestamps the way UpsertJoin does when a
// device comes back over HTTP.
func (f *fakeParticipantWriter) rejoin(k participantKey) {
	r := f.row(k)
	r.roomJoinedAt = nil
	r.roomLeftAt = nil
}

func (f *fakeParticipantWriter) countRows(tourID uuid.UUID) int {
	n := 0
	for k := range f.rows {
		if k.tourID == tourID {
			n++
		}
	}
	return n
}

func (f *fakeParticipantWriter) SetRoomJoined(_ context.Context, tourID uuid.UUID, deviceID string, ts time.Time) error {
	f.row(participantKey{tourID, deviceID}).roomJoinedAt = &ts
	return nil
}

func (f *fakeParticipantWriter) SetRoomLeft(_ context.Context, tourID uuid.UUID, deviceID string, ts time.Time) error {
	f.row(participantKey{tourID, deviceID}).roomLeftAt = &ts
	return nil
}

type capturePublisher struct {
	snapshots []domain.Tour
}

func (c *capturePublisher) PublishTourSnapshot(_ context.Context, t *domain.Tour) error {
	c.snapshots = append(c.snapshots, *t)
	return nil
}

func newService(tourIDs ...uuid.UUID) (*webhooks.Service, *fakeTourWriter, *fakeParticipantWriter, *capturePublisher) {
	tw := newFakeTourWriter(tourIDs...)
	pw := newFakeParticipantWriter()
	tw.participants = pw
	pub := &capturePublisher{}
	svc := webhooks.New(tw, pw, pub, slog.New(slog.DiscardHandler))
	return svc, tw, pw, pub
}

func TestProcess_RoomStarted(t *testing.T) {
	tourID := uuid.New()
	svc, tw, _, pub := newService(tourID)

	created := time.Now().Add(-time.Minute).Unix()
	err := svc.Process(context.Background(), webhooks.Event{
		Event:     webhooks.EventRoomStarted,
		Room:      webhooks.RoomRef{Name: webhooks.RoomName(tourID)},
		CreatedAt: created,
	})
	require.NoError(t, err)

	st := tw.tours[tourID]
	require.NotNil(t, st.roomStartedAt)
	require.Equal(t, time.Unix(created, 0).UTC(), *st.roomStartedAt)
	require.Len(t, pub.snapshots, 1)
}

func TestProcess_MalformedRoomWritesNothing(t *testing.T) {
	tourID := uuid.New()
	svc, tw, pw, pub := newService(tourID)

	err := svc.Process(context.Background(), webhooks.Event{
		Event: webhooks.EventRoomStarted,
		Room:  webhooks.RoomRef{Name: "not-a-tour-room"},
	})
	require.ErrorIs(t, err, webhooks.ErrMalformedRoom)

	require.Nil(t, tw.tours[tourID].roomStartedAt)
	require.Empty(t, pw.rows)
	require.Empty(t, pub.snapshots)
}

func TestProcess_UnknownTour(t *testing.T) {
	svc, _, _, pub := newService()

	err := svc.Process(context.Background(), webhooks.Event{
		Event: webhooks.EventRoomFinished,
		Room:  webhooks.RoomRef{Name: webhooks.RoomName(uuid.New())},
	})
	require.ErrorIs(t, err, webhooks.ErrTourNotFound)
	require.Empty(t, pub.snapshots)
}

func TestProcess_UnrecognizedEventIgnored(t *testing.T) {
	tourID := uuid.New()
	svc, tw, _, pub := newService(tourID)

	err := svc.Process(context.Background(), webhooks.Event{
		Event: "track_published",
		Room:  webhooks.RoomRef{Name: webhooks.RoomName(tourID)},
	})
	require.NoError(t, err)

	require.Nil(t, tw.tours[tourID].roomStartedAt)
	require.Empty(t, pub.snapshots)
}

func TestProcess_GuideJoinAndLeave(t *testing.T) {
	tourID := uuid.New()
	svc, tw, pw, _ := newService(tourID)

	err := svc.Process(context.Background(), webhooks.Event{
		Event:       webhooks.EventParticipantJoined,
		Room:        webhooks.RoomRef{Name: webhooks.RoomName(tourID), NumParticipants: 1},
		Participant: &webhooks.ParticipantRef{Identity: webhooks.GuideIdentity(tourID)},
		CreatedAt:   time.Now().Unix(),
	})
	require.NoError(t, err)
	require.NotNil(t, tw.tours[tourID].guideJoinedAt)
	require.Empty(t, pw.rows, "guide events never touch participant rows")

	err = svc.Process(context.Background(), webhooks.Event{
		Event:       webhooks.EventParticipantLeft,
		Room:        webhooks.RoomRef{Name: webhooks.RoomName(tourID)},
		Participant: &webhooks.ParticipantRef{Identity: webhooks.GuideIdentity(tourID)},
		CreatedAt:   time.Now().Unix(),
	})
	require.NoError(t, err)
	require.NotNil(t, tw.tours[tourID].guideLeftAt)
}

func TestProcess_GuideIdentityForOtherTourRejected(t *testing.T) {
	tourID := uuid.New()
	svc, tw, _, _ := newService(tourID)

	err := svc.Process(context.Background(), webhooks.Event{
		Event:       webhooks.EventParticipantJoined,
		Room:        webhooks.RoomRef{Name: webhooks.RoomName(tourID)},
		Participant: &webhooks.ParticipantRef{Identity: webhooks.GuideIdentity(uuid.New())},
	})
	require.ErrorIs(t, err, webhooks.ErrMalformedIdentity)
	require.Nil(t, tw.tours[tourID].guideJoinedAt)
}

func TestProcess_ListenerJoinRefreshesCounts(t *testing.T) {
	tourID := uuid.New()
	svc, tw, pw, pub := newService(tourID)

	err := svc.Process(context.Background(), webhooks.Event{
		Event:       webhooks.EventParticipantJoined,
		Room:        webhooks.RoomRef{Name: webhooks.RoomName(tourID), NumParticipants: 3},
		Participant: &webhooks.ParticipantRef{Identity: webhooks.ListenerIdentity("device-7")},
		CreatedAt:   time.Now().Unix(),
	})
	require.NoError(t, err)

	row := pw.rows[participantKey{tourID, "device-7"}]
	require.NotNil(t, row)
	require.NotNil(t, row.roomJoinedAt)
	require.Equal(t, []int{3}, tw.tours[tourID].refreshedCurrent)
	require.Equal(t, 1, tw.tours[tourID].totalCount)
	require.Len(t, pub.snapshots, 1)
	require.Equal(t, 3, pub.snapshots[0].CurrentParticipants)
}

func TestProcess_RejoinDoesNotShrinkCumulativeTotal(t *testing.T) {
	tourID := uuid.New()
	svc, tw, pw, _ := newService(tourID)

	key := participantKey{tourID, "device-7"}

	err := svc.Process(context.Background(), webhooks.Event{
		Event:       webhooks.EventParticipantJoined,
		Room:        webhooks.RoomRef{Name: webhooks.RoomName(tourID), NumParticipants: 1},
		Participant: &webhooks.ParticipantRef{Identity: webhooks.ListenerIdentity("device-7")},
		CreatedAt:   time.Now().Unix(),
	})
	require.NoError(t, err)
	require.Equal(t, 1, tw.tours[tourID].totalCount)

	// the device rejoins over HTTP before its next provider join lands,
	// clearing the provider timestamps on its row
	pw.rejoin(key)

	err = svc.Process(context.Background(), webhooks.Event{
		Event:       webhooks.EventParticipantLeft,
		Room:        webhooks.RoomRef{Name: webhooks.RoomName(tourID), NumParticipants: 0},
		Participant: &webhooks.ParticipantRef{Identity: webhooks.ListenerIdentity("device-7")},
		CreatedAt:   time.Now().Unix(),
	})
	require.NoError(t, err)
	require.Equal(t, 1, tw.tours[tourID].totalCount,
		"the cumulative total must never go backwards")
}

func TestProcess_DuplicateLeaveIsIdempotent(t *testing.T) {
	tourID := uuid.New()
	svc, _, pw, _ := newService(tourID)

	ev := webhooks.Event{
		Event:       webhooks.EventParticipantLeft,
		Room:        webhooks.RoomRef{Name: webhooks.RoomName(tourID), NumParticipants: 0},
		Participant: &webhooks.ParticipantRef{Identity: webhooks.ListenerIdentity("device-7")},
		CreatedAt:   time.Now().Add(-time.Minute).Unix(),
	}

	require.NoError(t, svc.Process(context.Background(), ev))
	first := *pw.rows[participantKey{tourID, "device-7"}].roomLeftAt

	// redelivery carries the same event timestamp, so the write is a no-op
	require.NoError(t, svc.Process(context.Background(), ev))
	require.Equal(t, first, *pw.rows[participantKey{tourID, "device-7"}].roomLeftAt)
}

func TestProcess_ParticipantEventWithoutIdentity(t *testing.T) {
	tourID := uuid.New()
	svc, _, _, _ := newService(tourID)

	err := svc.Process(context.Background(), webhooks.Event{
		Event: webhooks.EventParticipantJoined,
		Room:  webhooks.RoomRef{Name: webhooks.RoomName(tourID)},
	})
	require.ErrorIs(t, err, webhooks.ErrMissingParticipant)
}

func TestParseIdentity(t *testing.T) {
	tourID := uuid.New()

	id, err := webhooks.ParseIdentity(webhooks.GuideIdentity(tourID))
	require.NoError(t, err)
	require.Equal(t, domain.RoleGuide, id.Role)
	require.Equal(t, tourID, id.TourID)

	id, err = webhooks.ParseIdentity(webhooks.ListenerIdentity("device-42"))
	require.NoError(t, err)
	require.Equal(t, domain.RoleGuest, id.Role)
	require.Equal(t, "device-42", id.DeviceID)

	_, err = webhooks.ParseIdentity("listener-")
	require.ErrorIs(t, err, webhooks.ErrMalformedIdentity)

	_, err = webhooks.ParseIdentity("moderator-abc")
	require.ErrorIs(t, err, webhooks.ErrMalformedIdentity)
}

func TestParseRoomName(t *testing.T) {
	tourID := uuid.New()

	got, err := webhooks.ParseRoomName(webhooks.RoomName(tourID))
	require.NoError(t, err)
	require.Equal(t, tourID, got)

	_, err = webhooks.ParseRoomName("tour-not-a-uuid")
	require.ErrorIs(t, err, webhooks.ErrMalformedRoom)

	_, err = webhooks.ParseRoomName("lobby")
	require.ErrorIs(t, err, webhooks.ErrMalformedRoom)
}
