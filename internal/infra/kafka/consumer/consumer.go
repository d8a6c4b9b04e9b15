package consumer

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/imgpipe/image-deriver/internal/config"
)

// fetchBackoff is slept after a failed fetch before trying again.
const fetchBackoff = 500 * time.Millisecond

// createdHandler defines the interface for handling object-created messages.
type createdHandler interface {
	Handle(ctx context.Context, msg kafka.Message) error
}

// Consumer reads object-created events from the configured topic and hands
// each message to the handler. Fetch and commit go through the retry
// strategy; message handling itself is never retried.
type Consumer struct {
	Client   *wbfkafka.Consumer
	handler  createdHandler
	cfg      *config.Kafka
	strategy retry.Strategy
}

// New creates a Consumer for the object-created topic.
func New(cfg *config.Kafka, s retry.Strategy, h createdHandler) *Consumer {
	return &Consumer{
		Client:   wbfkafka.NewConsumer(cfg.Brokers, cfg.Topic, cfg.GroupID),
		handler:  h,
		cfg:      cfg,
		strategy: s,
	}
}

// Consume runs the fetch/handle/commit loop until ctx is canceled. Handler
// errors mark the message as poison: it is logged, left uncommitted and the
// loop moves on.
func (c *Consumer) Consume(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	zlog.Logger.Info().
		Str("topic", c.cfg.Topic).
		Str("group_id", c.cfg.GroupID).
		Msg("starting object event consumer")

	for {
		if ctx.Err() != nil {
			zlog.Logger.Info().Msg("shutdown signal received, stopping consumer")
			return
		}

		var msg kafka.Message
		err := retry.Do(func() error {
			var fetchErr error
			msg, fetchErr = c.Client.Fetch(ctx)
			return fetchErr
		}, c.strategy)

		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			zlog.Logger.Err(err).Msg("failed to fetch message")
			time.Sleep(fetchBackoff)
			continue
		}

		if err := c.handler.Handle(ctx, msg); err != nil {
			zlog.Logger.Err(err).
				Str("message", string(msg.Value)).
				Msg("dropping malformed object event")
			continue
		}

		err = retry.Do(func() error {
			return c.Client.Commit(ctx, msg)
		}, c.strategy)
		if err != nil {
			zlog.Logger.Err(err).Msg("failed to commit message after retries")
		}
	}
}
