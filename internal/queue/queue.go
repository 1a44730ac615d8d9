package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/therealutkarshpriyadarshi/render/internal/config"
)

const (
	PollQueueName  = "render_polls"
	DelayQueueName = "render_polls_delay"
	ExchangeName   = "render"
)

// RenderPollMessage asks a worker to poll one in-flight render
type RenderPollMessage struct {
	RenderID   string    `json:"renderId"`
	Bucket     string    `json:"bucketName"`
	TimelineID string    `json:"timelineId"`
	LaunchedAt time.Time `json:"launchedAt"`
	// Failures counts consecutive polls that could not reach the farm
	Failures int `json:"failures,omitempty"`
}

// Queue provides message queue operations
type Queue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// New creates a new queue client and declares the poll topology
func New(cfg config.QueueConfig) (*Queue, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Vhost)

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q := &Queue{conn: conn, channel: channel}
	if err := q.declare(); err != nil {
		q.Close()
		return nil, err
	}
	if err := q.SetupDeadLetterQueue(); err != nil {
		q.Close()
		return nil, err
	}

	return q, nil
}

func (q *Queue) declare() error {
	err := q.channel.ExchangeDeclare(
		ExchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err = q.channel.QueueDeclare(
		PollQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := q.channel.QueueBind(PollQueueName, PollQueueName, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	// Messages sit in the delay queue until their expiration, then dead
	// letter back onto the poll queue.
	_, err = q.channel.QueueDeclare(
		DelayQueueName,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    ExchangeName,
			"x-dead-letter-routing-key": PollQueueName,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to declare delay queue: %w", err)
	}

	if err := q.channel.QueueBind(DelayQueueName, DelayQueueName, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind delay queue: %w", err)
	}

	return nil
}

// Close closes the queue connection
func (q *Queue) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// PublishPoll schedules an immediate poll
func (q *Queue) PublishPoll(ctx context.Context, msg *RenderPollMessage) error {
	return q.publish(ctx, PollQueueName, msg, nil, 0)
}

// PublishPollDelayed schedules a poll after delay
func (q *Queue) PublishPollDelayed(ctx context.Context, msg *RenderPollMessage, delay time.Duration) error {
	if delay <= 0 {
		return q.PublishPoll(ctx, msg)
	}
	return q.publish(ctx, DelayQueueName, msg, nil, delay)
}

func (q *Queue) publish(ctx context.Context, routingKey string, msg *RenderPollMessage, headers amqp.Table, delay time.Duration) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal poll message: %w", err)
	}

	publishing := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    time.Now(),
		Headers:      headers,
	}
	if delay > 0 {
		publishing.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)
	}

	err = q.channel.PublishWithContext(ctx,
		ExchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		publishing,
	)
	if err != nil {
		return fmt.Errorf("failed to publish poll message: %w", err)
	}

	return nil
}

// ConsumePolls delivers poll messages to handler one at a time. A handler
// error requeues the message; undecodable messages are dropped.
func (q *Queue) ConsumePolls(ctx context.Context, prefetch int, handler func(context.Context, *RenderPollMessage) error) error {
	if prefetch < 1 {
		prefetch = 1
	}

	err := q.channel.Qos(
		prefetch, // prefetch count
		0,        // prefetch size
		false,    // global
	)
	if err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := q.channel.Consume(
		PollQueueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}

				msg, err := DecodePollMessage(d.Body)
				if err != nil {
					d.Nack(false, false)
					continue
				}

				if err := handler(ctx, msg); err != nil {
					d.Nack(false, true)
				} else {
					d.Ack(false)
				}
			}
		}
	}()

	return nil
}

// DecodePollMessage parses and validates a poll message body
func DecodePollMessage(body []byte) (*RenderPollMessage, error) {
	var msg RenderPollMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal poll message: %w", err)
	}
	if msg.RenderID == "" {
		return nil, fmt.Errorf("poll message has no render id")
	}
	return &msg, nil
}

// GetQueueDepth returns the number of messages in the poll queue
func (q *Queue) GetQueueDepth() (int, error) {
	info, err := q.channel.QueueInspect(PollQueueName)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect queue: %w", err)
	}

	return info.Messages, nil
}
