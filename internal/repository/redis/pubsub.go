package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/voxtour/voxtour-go/internal/domain"
)

// TourSyncPubSub fans full tour rows out to every subscriber of a tour's
// topic. Delivery is at-least-once and unordered across subscribers; every
// message is a complete replacement, never a diff.
type TourSyncPubSub struct {
	rdb *redis.Client
}

func NewTourSyncPubSub(rdb *redis.Client) *TourSyncPubSub {
	return &TourSyncPubSub{rdb: rdb}
}

// SnapshotEnvelope is the wire form of one tour snapshot. UpdatedAt lets
// consumers drop messages older than the row they already hold.
type SnapshotEnvelope struct {
	Type      string      `json:"type"`
	Tour      domain.Tour `json:"tour"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (p *TourSyncPubSub) PublishTourSnapshot(ctx context.Context, t *domain.Tour) error {
	msg := SnapshotEnvelope{
		Type:      "tour_snapshot",
		Tour:      *t,
		UpdatedAt: t.UpdatedAt,
	}

	b, _ := json.Marshal(msg)

	return p.rdb.Publish(ctx, ChannelTourSync(t.ID), b).Err()
}

// Subscribe delivers snapshot envelopes for one tour until ctx is cancelled.
// Malformed payloads are skipped.
func (p *TourSyncPubSub) Subscribe(
	ctx context.Context,
	tourID uuid.UUID,
	handler func(ctx context.Context, env SnapshotEnvelope),
) error {
	sub := p.rdb.Subscribe(ctx, ChannelTourSync(tourID))
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var env SnapshotEnvelope
			if err := json.Unmarshal([]byte(m.Payload), &env); err == nil &&
				env.Tour.ID != uuid.Nil {
				handler(ctx, env)
			}
		}
	}
}
