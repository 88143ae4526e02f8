package session_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/voxtour/voxtour-go/internal/domain"
	"github.com/voxtour/voxtour-go/internal/session"
)

type fakeRoom struct {
	mu          sync.Mutex
	connectErr  error
	connects    int
	disconnects int
	micEnabled  bool
	muted       bool
	roster      []string

	// when set, Connect signals connectStarted and stalls until
	// connectRelease is fed, modeling a slow dial
	connectStarted chan struct{}
	connectRelease chan struct{}
	dialInFlight   bool
	overlapped     bool
}

func (r *fakeRoom) Connect(_ context.Context, token string) error {
	r.mu.Lock()
	if r.connectErr != nil {
		r.mu.Unlock()
		return r.connectErr
	}
	if token == "" {
		r.mu.Unlock()
		return errors.New("empty token")
	}
	r.connects++
	started, release := r.connectStarted, r.connectRelease
	r.dialInFlight = release != nil
	r.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
		r.mu.Lock()
		r.dialInFlight = false
		r.mu.Unlock()
	}
	return nil
}

func (r *fakeRoom) Disconnect(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dialInFlight {
		r.overlapped = true
	}
	r.disconnects++
	return nil
}

func (r *fakeRoom) SetMicrophoneEnabled(enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.micEnabled = enabled
	return nil
}

func (r *fakeRoom) SetPlaybackMuted(muted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.muted = muted
}

func (r *fakeRoom) RemoteParticipants() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roster
}

func (r *fakeRoom) counts() (connects, disconnects int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects, r.disconnects
}

type fakeHardware struct {
	mu       sync.Mutex
	acquires int
	releases int
	err      error
}

func (h *fakeHardware) Acquire(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.acquires++
	return nil
}

func (h *fakeHardware) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.releases++
}

func (h *fakeHardware) counts() (acquires, releases int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.acquires, h.releases
}

type fakeTokens struct {
	err error
}

func (f *fakeTokens) RoomToken(_ context.Context, _ uuid.UUID, _ domain.Role, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "token", nil
}

type fakeEnder struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeEnder) End(_ context.Context, tourID uuid.UUID) (*domain.Tour, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return &domain.Tour{ID: tourID, Status: domain.TourCompleted}, nil
}

func (f *fakeEnder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type deps struct {
	room   *fakeRoom
	hw     *fakeHardware
	tokens *fakeTokens
	ender  *fakeEnder
}

func newManager(cfg session.Config) (*session.Manager, *deps) {
	d := &deps{
		room:   &fakeRoom{},
		hw:     &fakeHardware{},
		tokens: &fakeTokens{},
		ender:  &fakeEnder{},
	}
	m := session.NewManager(cfg, d.room, d.hw, d.tokens, d.ender, slog.New(slog.DiscardHandler))
	return m, d
}

func guideCfg() session.Config {
	return session.Config{TourID: uuid.New(), Role: domain.RoleGuide}
}

func guestCfg() session.Config {
	return session.Config{TourID: uuid.New(), Role: domain.RoleGuest, DeviceID: "device-1"}
}

func activeTour(id uuid.UUID) domain.Tour {
	return domain.Tour{ID: id, Status: domain.TourActive}
}

func TestConnect_SecondCallIsNoOp(t *testing.T) {
	m, d := newManager(guideCfg())

	require.NoError(t, m.Connect(context.Background()))
	require.Equal(t, session.StateConnected, m.State())

	require.NoError(t, m.Connect(context.Background()))

	connects, _ := d.room.counts()
	require.Equal(t, 1, connects, "a second connect must not open a second connection")
	acquires, _ := d.hw.counts()
	require.Equal(t, 1, acquires)
}

func TestConnect_TokenFailureReleasesHardware(t *testing.T) {
	m, d := newManager(guestCfg())
	d.tokens.err = errors.New("token service down")

	err := m.Connect(context.Background())
	require.Error(t, err)
	require.Equal(t, session.StateDisconnected, m.State())

	acquires, releases := d.hw.counts()
	require.Equal(t, 1, acquires)
	require.Equal(t, 1, releases, "hardware must not leak on a failed connect")
}

func TestConnect_RoomFailureReleasesHardware(t *testing.T) {
	m, d := newManager(guestCfg())
	d.room.connectErr = errors.New("ice failed")

	err := m.Connect(context.Background())
	require.Error(t, err)
	require.Equal(t, session.StateDisconnected, m.State())

	_, releases := d.hw.counts()
	require.Equal(t, 1, releases)

	// no retry happens on its own; a fresh trigger may connect again
	d.room.connectErr = nil
	require.NoError(t, m.Connect(context.Background()))
	require.Equal(t, session.StateConnected, m.State())
}

func TestConnect_HardwareFailureStaysDisconnected(t *testing.T) {
	m, d := newManager(guestCfg())
	d.hw.err = errors.New("audio session unavailable")

	err := m.Connect(context.Background())
	require.Error(t, err)
	require.Equal(t, session.StateDisconnected, m.State())

	connects, _ := d.room.counts()
	require.Equal(t, 0, connects)
}

func TestDisconnect_GuestKeepsHardwareUnlessLeaving(t *testing.T) {
	m, d := newManager(guestCfg())

	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Disconnect(context.Background(), false))

	_, releases := d.hw.counts()
	require.Equal(t, 0, releases, "a transient disconnect keeps the audio session warm")

	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Disconnect(context.Background(), true))

	_, releases = d.hw.counts()
	require.Equal(t, 1, releases)
}

func TestDisconnect_GuideAlwaysCleansUp(t *testing.T) {
	m, d := newManager(guideCfg())

	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Disconnect(context.Background(), false))

	_, releases := d.hw.counts()
	require.Equal(t, 1, releases)
}

func TestApplySnapshot_DrivesGuestConnection(t *testing.T) {
	cfg := guestCfg()
	m, d := newManager(cfg)

	m.ApplySnapshot(context.Background(), activeTour(cfg.TourID))
	require.Equal(t, session.StateConnected, m.State())

	ended := domain.Tour{ID: cfg.TourID, Status: domain.TourCompleted}
	m.ApplySnapshot(context.Background(), ended)
	require.Equal(t, session.StateDisconnected, m.State())

	connects, disconnects := d.room.counts()
	require.Equal(t, 1, connects)
	require.Equal(t, 1, disconnects)
}

func TestApplySnapshot_PendingDoesNotConnectGuest(t *testing.T) {
	cfg := guestCfg()
	m, d := newManager(cfg)

	m.ApplySnapshot(context.Background(), domain.Tour{ID: cfg.TourID, Status: domain.TourPending})
	require.Equal(t, session.StateDisconnected, m.State())

	connects, _ := d.room.counts()
	require.Equal(t, 0, connects)
}

func TestLeave_BlocksStatusDrivenReconnect(t *testing.T) {
	cfg := guestCfg()
	m, d := newManager(cfg)

	m.ApplySnapshot(context.Background(), activeTour(cfg.TourID))
	require.Equal(t, session.StateConnected, m.State())

	require.NoError(t, m.Leave(context.Background()))
	require.Equal(t, session.StateDisconnected, m.State())

	// a re-delivered active snapshot must not pull the guest back in
	m.ApplySnapshot(context.Background(), activeTour(cfg.TourID))
	require.Equal(t, session.StateDisconnected, m.State())

	connects, _ := d.room.counts()
	require.Equal(t, 1, connects)
}

func TestApplySnapshot_EndDuringConnectLeavesGuestDisconnected(t *testing.T) {
	cfg := guestCfg()
	m, d := newManager(cfg)
	d.room.connectStarted = make(chan struct{})
	d.room.connectRelease = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- m.Connect(context.Background()) }()
	<-d.room.connectStarted

	// the tour completes while the dial is still in flight
	m.ApplySnapshot(context.Background(), domain.Tour{ID: cfg.TourID, Status: domain.TourCompleted})

	d.room.connectRelease <- struct{}{}
	require.NoError(t, <-done)

	require.Equal(t, session.StateDisconnected, m.State())

	d.room.mu.Lock()
	overlapped := d.room.overlapped
	d.room.mu.Unlock()
	require.False(t, overlapped, "room.Disconnect must not run while the dial is in flight")

	_, disconnects := d.room.counts()
	require.Equal(t, 1, disconnects)
}

func TestLeave_DuringConnectWinsAndReleasesHardware(t *testing.T) {
	cfg := guestCfg()
	m, d := newManager(cfg)
	d.room.connectStarted = make(chan struct{})
	d.room.connectRelease = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- m.Connect(context.Background()) }()
	<-d.room.connectStarted

	require.NoError(t, m.Leave(context.Background()))

	d.room.connectRelease <- struct{}{}
	require.NoError(t, <-done)

	require.Equal(t, session.StateDisconnected, m.State())
	_, releases := d.hw.counts()
	require.Equal(t, 1, releases, "an explicit leave releases the audio session")

	// a re-delivered active snapshot must not pull the guest back in
	m.ApplySnapshot(context.Background(), activeTour(cfg.TourID))
	require.Equal(t, session.StateDisconnected, m.State())
	connects, _ := d.room.counts()
	require.Equal(t, 1, connects)
}

func TestHandleForeground_ReconnectsAfterSilentDrop(t *testing.T) {
	cfg := guestCfg()
	m, d := newManager(cfg)

	m.ApplySnapshot(context.Background(), activeTour(cfg.TourID))
	require.NoError(t, m.Disconnect(context.Background(), false)) // backgrounded

	m.HandleForeground(context.Background())
	require.Equal(t, session.StateConnected, m.State())

	connects, _ := d.room.counts()
	require.Equal(t, 2, connects)
}

func TestHandleForeground_NoOpAfterLeave(t *testing.T) {
	cfg := guestCfg()
	m, d := newManager(cfg)

	m.ApplySnapshot(context.Background(), activeTour(cfg.TourID))
	require.NoError(t, m.Leave(context.Background()))

	m.HandleForeground(context.Background())
	require.Equal(t, session.StateDisconnected, m.State())

	connects, _ := d.room.counts()
	require.Equal(t, 1, connects)
}

func TestToggleMicrophone_GuideOnly(t *testing.T) {
	guide, gd := newManager(guideCfg())
	require.NoError(t, guide.Connect(context.Background()))
	require.NoError(t, guide.ToggleMicrophone(false))
	require.False(t, gd.room.micEnabled)

	guest, _ := newManager(guestCfg())
	require.Error(t, guest.ToggleMicrophone(true))
}

func TestToggleMute_GuestOnly(t *testing.T) {
	guest, gd := newManager(guestCfg())
	require.NoError(t, guest.Connect(context.Background()))
	require.NoError(t, guest.ToggleMute(true))
	require.True(t, gd.room.muted)

	guide, _ := newManager(guideCfg())
	require.Error(t, guide.ToggleMute(true))
}

func TestAutoEnd_EndsTourAndDisconnects(t *testing.T) {
	cfg := guideCfg()
	cfg.AutoEndAfter = 20 * time.Millisecond
	m, d := newManager(cfg)

	require.NoError(t, m.Connect(context.Background()))

	require.Eventually(t, func() bool {
		return d.ender.count() == 1 && m.State() == session.StateDisconnected
	}, 2*time.Second, 10*time.Millisecond)

	_, releases := d.hw.counts()
	require.Equal(t, 1, releases)
}

func TestAutoEnd_CancelledByManualDisconnect(t *testing.T) {
	cfg := guideCfg()
	cfg.AutoEndAfter = 50 * time.Millisecond
	m, d := newManager(cfg)

	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Disconnect(context.Background(), true))

	time.Sleep(150 * time.Millisecond)
	require.Equal(t, 0, d.ender.count(), "cancelled timer must not end the tour")
}

func TestRosterSize(t *testing.T) {
	m, d := newManager(guideCfg())
	d.room.roster = []string{"listener-a", "listener-b"}

	require.Equal(t, 0, m.RosterSize(), "no roster while disconnected")

	require.NoError(t, m.Connect(context.Background()))
	require.Equal(t, 2, m.RosterSize())
}

func TestParticipantCount(t *testing.T) {
	m, d := newManager(guideCfg())
	d.room.roster = []string{"listener-a", "listener-b", "listener-c"}
	require.NoError(t, m.Connect(context.Background()))

	active := domain.Tour{Status: domain.TourActive, CurrentParticipants: 1, TotalParticipants: 9}
	require.Equal(t, 3, session.ParticipantCount(active, m))
	require.Equal(t, 1, session.ParticipantCount(active, nil), "counter fallback without a roster")

	completed := domain.Tour{Status: domain.TourCompleted, TotalParticipants: 9}
	require.Equal(t, 9, session.ParticipantCount(completed, m))

	pending := domain.Tour{Status: domain.TourPending, CurrentParticipants: 4}
	require.Equal(t, 0, session.ParticipantCount(pending, m))
}
