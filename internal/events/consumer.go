package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"breederhub/internal/domain"
)

const handleTimeout = 10 * time.Second

// SystemPoster appends a system-authored message to a thread. Satisfied by
// service.MessageService.
type SystemPoster interface {
	CreateSystemMessage(ctx context.Context, threadID int64, body string) (*domain.Message, error)
}

// Consumer drains composed auto-replies from the broker and posts them back
// into their threads as system messages. One queue, one binding; malformed
// deliveries are dropped, handler failures are requeued.
type Consumer struct {
	conn   *amqp091.Connection
	ch     *amqp091.Channel
	poster SystemPoster
	log    *zap.Logger

	exchange string
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewConsumer connects to the broker and declares the shared topic exchange.
func NewConsumer(url, exchange string, poster SystemPoster, log *zap.Logger) (*Consumer, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	return &Consumer{
		conn:     conn,
		ch:       ch,
		poster:   poster,
		log:      log,
		exchange: exchange,
		done:     make(chan struct{}),
	}, nil
}

// Start declares a durable queue bound to KeyAutoReplyComposed and consumes
// from it until Close. Safe to call once; later calls are no-ops.
func (c *Consumer) Start(queueName string) error {
	var startErr error
	c.once.Do(func() {
		if err := c.ch.Qos(10, 0, false); err != nil {
			startErr = err
			return
		}
		q, err := c.ch.QueueDeclare(queueName, true, false, false, false, nil)
		if err != nil {
			startErr = err
			return
		}
		if err := c.ch.QueueBind(q.Name, KeyAutoReplyComposed, c.exchange, false, nil); err != nil {
			startErr = err
			return
		}
		msgs, err := c.ch.Consume(q.Name, "", false, false, false, false, nil)
		if err != nil {
			startErr = err
			return
		}

		c.wg.Add(1)
		go c.loop(msgs)
		c.log.Info("auto-reply consumer started", zap.String("queue", queueName))
	})
	return startErr
}

func (c *Consumer) loop(msgs <-chan amqp091.Delivery) {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
			err := c.handle(ctx, msg.Body)
			cancel()
			if err != nil {
				c.log.Warn("auto-reply delivery failed",
					zap.String("message_id", msg.MessageId),
					zap.Error(err),
				)
				_ = msg.Nack(false, true)
				continue
			}
			_ = msg.Ack(false)
		}
	}
}

// handle decodes one delivery and posts the composed reply. Malformed
// deliveries are logged and dropped; only poster failures propagate so the
// loop requeues them.
func (c *Consumer) handle(ctx context.Context, body []byte) error {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		c.log.Warn("dropping malformed envelope", zap.Error(err))
		return nil
	}
	var composed AutoReplyComposed
	if err := json.Unmarshal(env.Payload, &composed); err != nil {
		c.log.Warn("dropping malformed payload",
			zap.String("event_id", env.Meta.ID),
			zap.Error(err),
		)
		return nil
	}
	if composed.ThreadID == 0 || composed.Body == "" {
		c.log.Warn("dropping incomplete composed reply", zap.String("event_id", env.Meta.ID))
		return nil
	}

	if _, err := c.poster.CreateSystemMessage(ctx, composed.ThreadID, composed.Body); err != nil {
		return fmt.Errorf("post system message: %w", err)
	}
	return nil
}

// Close stops the consume loop and tears down the connection.
func (c *Consumer) Close() error {
	close(c.done)
	c.wg.Wait()
	_ = c.ch.Close()
	return c.conn.Close()
}
