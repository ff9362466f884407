package queue

import (
	"context"
	"fmt"

	"school-identity-onboarding/internal/identity"
	"school-identity-onboarding/internal/logger"
	"school-identity-onboarding/internal/model"
	"school-identity-onboarding/internal/progress"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ProgressStreams opens push progress channels over Redis pub/sub. The
// identity service publishes JSON batch snapshots on one channel per batch.
type ProgressStreams struct {
	client  *redis.Client
	pattern string
	log     zerolog.Logger
}

func NewProgressStreams(redisClient *RedisClient) *ProgressStreams {
	return &ProgressStreams{
		client:  redisClient.Client(),
		pattern: redisClient.cfg.Redis.ProgressChannel,
		log:     logger.Component("progress-stream"),
	}
}

func (p *ProgressStreams) Channel(batchID string) string {
	return fmt.Sprintf(p.pattern, batchID)
}

// OpenProgressStream returns once the subscription is confirmed.
func (p *ProgressStreams) OpenProgressStream(ctx context.Context, batchID string) (progress.Stream, error) {
	channel := p.Channel(batchID)
	pubsub := p.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	p.log.Debug().Str("channel", channel).Msg("Progress stream opened")
	return &pubsubStream{
		pubsub:  pubsub,
		batchID: batchID,
		log:     p.log.With().Str("batch_id", batchID).Logger(),
	}, nil
}

type pubsubStream struct {
	pubsub  *redis.PubSub
	batchID string
	log     zerolog.Logger
}

func (s *pubsubStream) Next(ctx context.Context) (model.ProgressSnapshot, error) {
	for {
		msg, err := s.pubsub.ReceiveMessage(ctx)
		if err != nil {
			return model.ProgressSnapshot{}, err
		}
		snap, err := identity.DecodeSnapshot([]byte(msg.Payload))
		if err != nil {
			s.log.Warn().Err(err).Msg("Dropping malformed progress message")
			continue
		}
		if snap.BatchID == "" {
			snap.BatchID = s.batchID
		}
		return snap, nil
	}
}

func (s *pubsubStream) Close() error {
	return s.pubsub.Close()
}
