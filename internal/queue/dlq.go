package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DeadLetterQueueName    = "render_polls_dlq"
	DeadLetterExchangeName = "render_dlq"

	// MaxPollFailures is how many consecutive unreachable polls a render
	// gets before its message is parked in the dead letter queue
	MaxPollFailures = 8
)

// SetupDeadLetterQueue sets up the dead letter queue infrastructure
func (q *Queue) SetupDeadLetterQueue() error {
	err := q.channel.ExchangeDeclare(
		DeadLetterExchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare DLQ exchange: %w", err)
	}

	_, err = q.channel.QueueDeclare(
		DeadLetterQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare DLQ: %w", err)
	}

	err = q.channel.QueueBind(
		DeadLetterQueueName,
		DeadLetterQueueName,
		DeadLetterExchangeName,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to bind DLQ: %w", err)
	}

	return nil
}

// PublishToDeadLetterQueue parks a poll message that keeps failing
func (q *Queue) PublishToDeadLetterQueue(ctx context.Context, msg *RenderPollMessage, reason string) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal poll message: %w", err)
	}

	headers := amqp.Table{
		"x-failure-reason": reason,
		"x-failed-at":      time.Now().Format(time.RFC3339),
	}

	err = q.channel.PublishWithContext(ctx,
		DeadLetterExchangeName,
		DeadLetterQueueName,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
			Headers:      headers,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}

	return nil
}

// BackoffDelay is the re-poll delay after failures consecutive errors
// reaching the farm: base, 2*base, 4*base and so on, capped at five minutes.
func BackoffDelay(base time.Duration, failures int) time.Duration {
	if failures <= 0 {
		return base
	}
	if failures > 16 {
		failures = 16
	}

	delay := base * (1 << failures)
	if delay > 5*time.Minute {
		delay = 5 * time.Minute
	}
	return delay
}

// GetDLQDepth returns the number of messages in the dead letter queue
func (q *Queue) GetDLQDepth() (int, error) {
	info, err := q.channel.QueueInspect(DeadLetterQueueName)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect DLQ: %w", err)
	}

	return info.Messages, nil
}
