package currency

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Subscriber listens on a Redis channel for currency master-data changes and
// runs onChange for every message.
type Subscriber struct {
	client   *redis.Client
	channel  string
	onChange func()
	logger   *slog.Logger
}

// NewSubscriber builds a Subscriber.
func NewSubscriber(client *redis.Client, channel string, onChange func(), logger *slog.Logger) *Subscriber {
	return &Subscriber{client: client, channel: channel, onChange: onChange, logger: logger}
}

// Run blocks until ctx is cancelled or the subscription closes.
func (s *Subscriber) Run(ctx context.Context) error {
	ps := s.client.Subscribe(ctx, s.channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	s.logger.Info("listening for currency changes", slog.String("channel", s.channel))

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.onChange()
			s.logger.Info("currency cache invalidated", slog.String("channel", msg.Channel), slog.String("payload", msg.Payload))
		}
	}
}

// PublishChange announces that the currency with code was created, updated
// or deactivated.
func PublishChange(ctx context.Context, client *redis.Client, channel, code string) error {
	return client.Publish(ctx, channel, code).Err()
}
