package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/voxtour/voxtour-go/internal/domain"
)

// Room is the opaque audio-room connection: one per manager, connected at
// most once at a time. The transport behind it is a platform adapter.
type Room interface {
	Connect(ctx context.Context, token string) error
	Disconnect(ctx context.Context) error
	// SetMicrophoneEnabled toggles the local publish track (guide).
	SetMicrophoneEnabled(enabled bool) error
	// SetPlaybackMuted silences already-subscribed remote audio without
	// touching the connection, so unmuting is instantaneous (guest).
	SetPlaybackMuted(muted bool)
	// RemoteParticipants is the live roster of connected identities.
	RemoteParticipants() []string
}

// AudioHardware is the scoped audio-session resource. Acquired at the start
// of a connect, released on every connect failure path and on a cleanup
// disconnect. Release must be safe to call when nothing is held.
type AudioHardware interface {
	Acquire(ctx context.Context) error
	Release()
}

// TokenSource mints the short-lived signed credential for the tour's room.
type TokenSource interface {
	RoomToken(ctx context.Context, tourID uuid.UUID, role domain.Role, deviceID string) (string, error)
}

// TourEnder ends the tour when the auto-end deadline fires. Ending an
// already-completed tour is a no-op, so racing a manual end is harmless.
type TourEnder interface {
	End(ctx context.Context, tourID uuid.UUID) (*domain.Tour, error)
}
