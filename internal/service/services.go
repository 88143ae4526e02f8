package service

import (
	"log/slog"

	"github.com/voxtour/voxtour-go/internal/config"
	postgres "github.com/voxtour/voxtour-go/internal/repository/postgres"
	redis "github.com/voxtour/voxtour-go/internal/repository/redis"
	"github.com/voxtour/voxtour-go/internal/service/fees"
	"github.com/voxtour/voxtour-go/internal/service/participants"
	"github.com/voxtour/voxtour-go/internal/service/tokens"
	"github.com/voxtour/voxtour-go/internal/service/tours"
	"github.com/voxtour/voxtour-go/internal/service/webhooks"
)

type Services struct {
	Tours        *tours.Service
	Webhooks     *webhooks.Service
	Fees         *fees.Service
	Participants *participants.Service
	Tokens       *tokens.Service
}

type Config struct {
	Tours tours.Config
	Token config.TokenConfig
	Fees  config.FeesConfig
}

func NewServices(
	store *postgres.Store,
	cache *redis.Cache,
	pubsub *redis.TourSyncPubSub,
	logger *slog.Logger,
	cfg Config,
) *Services {
	return &Services{
		Tours:        tours.New(store.Tours(), pubsub, logger, cfg.Tours),
		Webhooks:     webhooks.New(store.Tours(), store.Participants(), pubsub, logger),
		Fees:         fees.New(store.Tips(), store.Tours(), feeStructures(cfg.Fees)),
		Participants: participants.New(store, cache, logger),
		Tokens: tokens.New(store.Tours(), store.Participants(), tokens.Config{
			RoomSecret:    cfg.Token.RoomSecret,
			SessionSecret: cfg.Token.SessionSecret,
			RoomTokenTTL:  cfg.Token.RoomTokenTTL,
		}),
	}
}

// feeStructures applies the configured usd override on top of the defaults.
func feeStructures(cfg config.FeesConfig) map[string]fees.Structure {
	structures := fees.DefaultStructures()
	if cfg.USDPercentageFee > 0 || cfg.USDFixedFeeCents > 0 {
		usd := structures["usd"]
		if cfg.USDPercentageFee > 0 {
			usd.PercentageFee = cfg.USDPercentageFee
		}
		if cfg.USDFixedFeeCents > 0 {
			usd.FixedFeeCents = cfg.USDFixedFeeCents
		}
		structures["usd"] = usd
	}
	return structures
}
