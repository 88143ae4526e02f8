package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/voxtour/voxtour-go/internal/domain"
)

type State string

const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateDisconnecting State = "disconnecting"
)

// DefaultAutoEndAfter is the guide-side deadline after which a connected
// session ends its own tour.
const DefaultAutoEndAfter = 6 * time.Hour

type Config struct {
	TourID       uuid.UUID
	Role         domain.Role
	DeviceID     string // guests only
	AutoEndAfter time.Duration
}

// Manager supervises one client's audio-room connection. Its public
// operations are mutually exclusive: a connect triggered by a status change
// and one triggered by an app-foreground transition serialize on the
// internal lock, and the loser observes a no-op instead of opening a second
// connection. Desired state is re-derived from the latest tour snapshot, not
// from message deltas.
type Manager struct {
	cfg    Config
	room   Room
	hw     AudioHardware
	tokens TokenSource
	ender  TourEnder
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	hasLeft bool
	// disconnectWanted marks a disconnect requested while a connect was in
	// flight; the connect observes it at its commit point and undoes itself
	// instead of committing connected.
	disconnectWanted  bool
	disconnectCleanup bool
	lastStatus        domain.TourStatus
	autoEnd           *time.Timer
}

func NewManager(
	cfg Config,
	room Room,
	hw AudioHardware,
	tokens TokenSource,
	ender TourEnder,
	logger *slog.Logger,
) *Manager {
	if cfg.AutoEndAfter <= 0 {
		cfg.AutoEndAfter = DefaultAutoEndAfter
	}

	return &Manager{
		cfg:        cfg,
		room:       room,
		hw:         hw,
		tokens:     tokens,
		ender:      ender,
		logger:     logger,
		state:      StateDisconnected,
		lastStatus: domain.TourPending,
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RosterSize is the live remote roster while connected, zero otherwise.
func (m *Manager) RosterSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnected {
		return 0
	}
	return len(m.room.RemoteParticipants())
}

// Connect opens the room connection: acquire the audio hardware, fetch a
// room token, connect, then (guide only) arm the auto-end timer. A call
// while connected, connecting or disconnecting is a no-op. On any failure
// the hardware is released and the state returns to disconnected; no retry
// happens here - re-attempts come from the external triggers only.
func (m *Manager) Connect(ctx context.Context) error {
	const op = "session.Manager.Connect"

	m.mu.Lock()

	if m.state != StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	if m.cfg.Role == domain.RoleGuest && m.hasLeft {
		m.mu.Unlock()
		return nil
	}

	m.state = StateConnecting
	m.mu.Unlock()

	fail := func(err error) error {
		m.hw.Release()
		m.mu.Lock()
		m.state = StateDisconnected
		m.disconnectWanted = false
		m.disconnectCleanup = false
		m.mu.Unlock()
		return fmt.Errorf("%s:%w", op, err)
	}

	if err := m.hw.Acquire(ctx); err != nil {
		m.mu.Lock()
		m.state = StateDisconnected
		m.disconnectWanted = false
		m.disconnectCleanup = false
		m.mu.Unlock()
		return fmt.Errorf("%s:%w", op, err)
	}

	token, err := m.tokens.RoomToken(ctx, m.cfg.TourID, m.cfg.Role, m.cfg.DeviceID)
	if err != nil {
		return fail(err)
	}

	if err := m.room.Connect(ctx, token); err != nil {
		return fail(err)
	}

	m.mu.Lock()
	if m.disconnectWanted {
		// A disconnect arrived while the dial was in flight. Undo here, where
		// the connection is owned, rather than letting the two operations run
		// against the room at the same time.
		cleanup := m.disconnectCleanup
		m.disconnectWanted = false
		m.disconnectCleanup = false
		m.state = StateDisconnecting
		m.mu.Unlock()

		derr := m.room.Disconnect(ctx)
		if cleanup {
			m.hw.Release()
		}

		m.mu.Lock()
		m.state = StateDisconnected
		m.mu.Unlock()

		if derr != nil {
			return fmt.Errorf("%s:%w", op, derr)
		}
		return nil
	}
	m.state = StateConnected
	if m.cfg.Role == domain.RoleGuide {
		m.armAutoEndLocked()
	}
	m.mu.Unlock()

	return nil
}

// Disconnect closes the room connection. A call while disconnected or
// disconnecting is a no-op. While a connect is in flight the request is
// recorded instead of executed: the connect owns the room handle and will
// undo itself before committing connected. The hardware is released when
// cleanupHardware is set - guides always clean up, guests only when truly
// leaving rather than briefly backgrounding.
func (m *Manager) Disconnect(ctx context.Context, cleanupHardware bool) error {
	const op = "session.Manager.Disconnect"

	m.mu.Lock()

	switch m.state {
	case StateDisconnected, StateDisconnecting:
		m.mu.Unlock()
		return nil
	case StateConnecting:
		m.disconnectWanted = true
		m.disconnectCleanup = m.disconnectCleanup || cleanupHardware || m.cfg.Role == domain.RoleGuide
		m.mu.Unlock()
		return nil
	}

	cleanup := cleanupHardware || m.cfg.Role == domain.RoleGuide
	m.state = StateDisconnecting
	m.mu.Unlock()

	err := m.room.Disconnect(ctx)

	if cleanup {
		m.hw.Release()
	}

	m.mu.Lock()
	if cleanup {
		m.cancelAutoEndLocked()
	}
	m.state = StateDisconnected
	m.mu.Unlock()

	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// ToggleMicrophone enables or disables the local publish track without
// touching the room connection. Guide only.
func (m *Manager) ToggleMicrophone(enabled bool) error {
	const op = "session.Manager.ToggleMicrophone"

	if m.cfg.Role != domain.RoleGuide {
		return fmt.Errorf("%s: not a guide session", op)
	}

	if err := m.room.SetMicrophoneEnabled(enabled); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// ToggleMute silences playback of remote audio without disconnecting or
// unsubscribing, so unmuting needs no renegotiation. Guest only.
func (m *Manager) ToggleMute(muted bool) error {
	const op = "session.Manager.ToggleMute"

	if m.cfg.Role != domain.RoleGuest {
		return fmt.Errorf("%s: not a guest session", op)
	}

	m.room.SetPlaybackMuted(muted)

	return nil
}

// Leave is the guest's explicit exit. The has-left flag is set before the
// disconnect so a status-driven reconnect racing with it cannot slip back in.
func (m *Manager) Leave(ctx context.Context) error {
	m.mu.Lock()
	m.hasLeft = true
	m.mu.Unlock()

	return m.Disconnect(ctx, true)
}

// ApplySnapshot feeds the latest tour row to the manager, which re-derives
// its desired connection state from the current status. Snapshots and
// foreground transitions may race; the lock in Connect/Disconnect
// serializes their effect.
func (m *Manager) ApplySnapshot(ctx context.Context, t domain.Tour) {
	m.mu.Lock()
	m.lastStatus = t.Status
	hasLeft := m.hasLeft
	state := m.state
	m.mu.Unlock()

	switch {
	case t.Status == domain.TourActive && m.cfg.Role == domain.RoleGuest && !hasLeft:
		if state == StateDisconnected {
			if err := m.Connect(ctx); err != nil {
				m.logger.Warn("status-driven connect failed",
					"tour_id", m.cfg.TourID, "error", err)
			}
		}

	case t.Status != domain.TourActive:
		if state == StateConnected || state == StateConnecting {
			if err := m.Disconnect(ctx, false); err != nil {
				m.logger.Warn("status-driven disconnect failed",
					"tour_id", m.cfg.TourID, "error", err)
			}
		}
	}
}

// HandleForeground re-establishes a connection that was silently dropped
// while the app was backgrounded, if the tour is still active.
func (m *Manager) HandleForeground(ctx context.Context) {
	m.mu.Lock()
	active := m.lastStatus == domain.TourActive
	hasLeft := m.hasLeft
	m.mu.Unlock()

	if !active || hasLeft {
		return
	}

	if err := m.Connect(ctx); err != nil {
		m.logger.Warn("foreground reconnect failed",
			"tour_id", m.cfg.TourID, "error", err)
	}
}

func (m *Manager) armAutoEndLocked() {
	m.cancelAutoEndLocked()
	m.autoEnd = time.AfterFunc(m.cfg.AutoEndAfter, m.onAutoEnd)
}

func (m *Manager) cancelAutoEndLocked() {
	if m.autoEnd != nil {
		m.autoEnd.Stop()
		m.autoEnd = nil
	}
}

// onAutoEnd fires when the deadline passes while still connected: end the
// tour, then disconnect with cleanup. End is idempotent, so racing a manual
// end is harmless.
func (m *Manager) onAutoEnd() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if m.ender != nil {
		if _, err := m.ender.End(ctx, m.cfg.TourID); err != nil {
			m.logger.Warn("auto-end failed", "tour_id", m.cfg.TourID, "error", err)
		}
	}

	if err := m.Disconnect(ctx, true); err != nil {
		m.logger.Warn("auto-end disconnect failed", "tour_id", m.cfg.TourID, "error", err)
	}
}
