package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/voxtour/voxtour-go/internal/domain"
	redisrepo "github.com/voxtour/voxtour-go/internal/repository/redis"
)

// Source is the per-tour snapshot topic. Delivery is at-least-once and not
// globally ordered; the channel compensates, not the source.
type Source interface {
	Subscribe(
		ctx context.Context,
		tourID uuid.UUID,
		handler func(ctx context.Context, env redisrepo.SnapshotEnvelope),
	) error
}

// Channel consumes one tour's sync topic. Every admitted message is handed
// to the consumer as an authoritative full replacement of local state; a
// snapshot older than the locally held row is dropped, never merged.
type Channel struct {
	src    Source
	tourID uuid.UUID
	logger *slog.Logger

	mu   sync.Mutex
	held time.Time
}

func NewChannel(src Source, tourID uuid.UUID, logger *slog.Logger) *Channel {
	return &Channel{
		src:    src,
		tourID: tourID,
		logger: logger,
	}
}

// Run subscribes and delivers admitted snapshots to apply until ctx is
// cancelled. Unsubscribing happens when Run returns.
func (c *Channel) Run(ctx context.Context, apply func(ctx context.Context, t domain.Tour)) error {
	return c.src.Subscribe(ctx, c.tourID, func(ctx context.Context, env redisrepo.SnapshotEnvelope) {
		if !c.admit(env.UpdatedAt) {
			c.logger.Debug("dropping stale tour snapshot",
				"tour_id", c.tourID, "snapshot_updated_at", env.UpdatedAt)
			return
		}
		apply(ctx, env.Tour)
	})
}

// Observe records a row version applied locally by an optimistic write, so
// that an older snapshot delivered afterwards is dropped.
func (c *Channel) Observe(updatedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if updatedAt.After(c.held) {
		c.held = updatedAt
	}
}

func (c *Channel) admit(updatedAt time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if updatedAt.Before(c.held) {
		return false
	}
	c.held = updatedAt
	return true
}
