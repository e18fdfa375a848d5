package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/labguard/detection-service/internal/repository"
)

// Message is one queued detection request, decoupled from the broker's
// delivery type so the worker can be tested without a live connection.
type Message struct {
	Body      []byte
	Timestamp time.Time
	Ack       func(multiple bool) error
	Nack      func(multiple bool, requeue bool) error
}

type Consumer interface {
	Consume(ctx context.Context) (<-chan Message, error)
	QueueLength() (int, error)
	Close() error
}

type consumer struct {
	rabbit      repository.RabbitMQRepository
	queue       string
	consumerTag string
	prefetch    int
	logger      zerolog.Logger
}

func NewConsumer(rabbit repository.RabbitMQRepository, queue, consumerTag string, prefetch int, logger zerolog.Logger) Consumer {
	return &consumer{
		rabbit:      rabbit,
		queue:       queue,
		consumerTag: consumerTag,
		prefetch:    prefetch,
		logger:      logger,
	}
}

func (c *consumer) Consume(ctx context.Context) (<-chan Message, error) {
	msgs, err := c.rabbit.Consume(ctx, c.queue, c.consumerTag, c.prefetch)
	if err != nil {
		return nil, err
	}

	output := make(chan Message)

	go func() {
		defer close(output)

		for {
			select {
			case <-ctx.Done():
				c.logger.Info().Msg("Stopping queue consumer")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn().Msg("Broker delivery channel closed")
					return
				}

				out := Message{
					Body:      msg.Body,
					Timestamp: msg.Timestamp,
					Ack:       msg.Ack,
					Nack:      msg.Nack,
				}

				select {
				case output <- out:
				case <-ctx.Done():
					msg.Nack(false, true)
					return
				}
			}
		}
	}()

	c.logger.Info().
		Str("queue", c.queue).
		Str("consumer_tag", c.consumerTag).
		Msg("Queue consumer started")

	return output, nil
}

func (c *consumer) QueueLength() (int, error) {
	return c.rabbit.QueueLength(c.queue)
}

func (c *consumer) Close() error {
	if err := c.rabbit.CancelConsumer(c.consumerTag); err != nil {
		c.logger.Error().Err(err).Msg("Failed to cancel queue consumer")
	}

	c.logger.Info().Msg("Queue consumer closed")
	return nil
}
