package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"

	"taskkash/internal/pkg/metrics"
)

const dedupeTTL = 72 * time.Hour

// ErrDeliveriesClosed is returned by Consumer.Run when the broker closes the
// delivery channel while the consumer is still wanted.
var ErrDeliveriesClosed = errors.New("notification delivery channel closed")

// Deduper remembers which message ids were already delivered.
type Deduper interface {
	// Claim reports true when the caller is the first to deliver id.
	Claim(ctx context.Context, id string) (bool, error)
	// Release forgets a claim so a retry can deliver id again.
	Release(ctx context.Context, id string) error
}

// RedisDeduper keeps claims in redis so every consumer instance shares them.
type RedisDeduper struct {
	client redis.Cmdable
	prefix string
}

// NewRedisDeduper creates a RedisDeduper.
func NewRedisDeduper(client redis.Cmdable, prefix string) *RedisDeduper {
	return &RedisDeduper{client: client, prefix: prefix}
}

// Claim implements Deduper.
func (d *RedisDeduper) Claim(ctx context.Context, id string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+":"+id, 1, dedupeTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim message: %w", err)
	}
	return ok, nil
}

// Release implements Deduper.
func (d *RedisDeduper) Release(ctx context.Context, id string) error {
	if err := d.client.Del(ctx, d.prefix+":"+id).Err(); err != nil {
		return fmt.Errorf("failed to release message: %w", err)
	}
	return nil
}

// ConsumerConfig tunes retry behaviour.
type ConsumerConfig struct {
	MaxAttempts int
	RetryDelay  time.Duration
}

// Consumer delivers queued messages and retries failed ones.
type Consumer struct {
	dispatcher *Dispatcher
	retry      Publisher
	dedupe     Deduper
	cfg        ConsumerConfig
}

// NewConsumer creates a Consumer. retry republishes failed messages; dedupe
// may be nil.
func NewConsumer(d *Dispatcher, retry Publisher, dedupe Deduper, cfg ConsumerConfig) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Consumer{dispatcher: d, retry: retry, dedupe: dedupe, cfg: cfg}
}

// Run consumes from queue on ch until ctx is done. It returns
// ErrDeliveriesClosed if the broker drops the channel first.
func (c *Consumer) Run(ctx context.Context, ch *amqp.Channel, queue, tag string) error {
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	deliveries, err := ch.Consume(
		queue,
		tag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	log.Info().Str("consumer", tag).Str("queue", queue).Msg("Notification consumer started")
	err = c.consume(ctx, deliveries)
	if ctx.Err() != nil {
		_ = ch.Cancel(tag, false)
	}
	return err
}

// consume handles deliveries until ctx is done or the broker closes the
// delivery channel. Only the latter is an error.
func (c *Consumer) consume(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrDeliveriesClosed
			}
			c.handle(ctx, d)
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		log.Error().Err(err).Str("message_id", d.MessageId).Msg("Dropping malformed notification")
		metrics.Notifications.WithLabelValues("unknown", "malformed").Inc()
		_ = d.Nack(false, false)
		return
	}

	if c.dedupe != nil && msg.ID != "" {
		first, err := c.dedupe.Claim(ctx, msg.ID)
		if err != nil {
			log.Warn().Err(err).Str("message_id", msg.ID).Msg("Dedupe unavailable, delivering anyway")
		} else if !first {
			metrics.Notifications.WithLabelValues(string(msg.Kind), "duplicate").Inc()
			_ = d.Ack(false)
			return
		}
	}

	err := c.dispatcher.Dispatch(ctx, msg)
	if err == nil {
		metrics.Notifications.WithLabelValues(string(msg.Kind), "delivered").Inc()
		_ = d.Ack(false)
		return
	}

	if c.dedupe != nil && msg.ID != "" {
		if rerr := c.dedupe.Release(ctx, msg.ID); rerr != nil {
			log.Warn().Err(rerr).Str("message_id", msg.ID).Msg("Failed to release dedupe claim")
		}
	}

	msg.Attempt++
	if msg.Attempt >= c.cfg.MaxAttempts {
		log.Error().Err(err).
			Str("message_id", msg.ID).
			Str("kind", string(msg.Kind)).
			Int("attempts", msg.Attempt).
			Msg("Notification delivery failed, giving up")
		metrics.Notifications.WithLabelValues(string(msg.Kind), "dropped").Inc()
		_ = d.Ack(false)
		return
	}

	log.Warn().Err(err).
		Str("message_id", msg.ID).
		Int("attempt", msg.Attempt).
		Msg("Notification delivery failed, retrying")

	if c.cfg.RetryDelay > 0 {
		select {
		case <-time.After(c.cfg.RetryDelay):
		case <-ctx.Done():
			_ = d.Nack(false, true)
			return
		}
	}

	if perr := c.retry.Publish(ctx, msg); perr != nil {
		log.Error().Err(perr).Str("message_id", msg.ID).Msg("Failed to requeue notification")
		_ = d.Nack(false, true)
		return
	}
	metrics.Notifications.WithLabelValues(string(msg.Kind), "retried").Inc()
	_ = d.Ack(false)
}
