package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Client wraps one connection and channel for the export pipeline. Sync and
// delete messages travel through the same direct exchange with the queue
// name as routing key.
type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	syncQueue    string
	deleteQueue  string
}

func NewClient(url, exchangeName, syncQueue, deleteQueue string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		syncQueue:    syncQueue,
		deleteQueue:  deleteQueue,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queues: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, queue := range []string{c.syncQueue, c.deleteQueue} {
		_, err = c.channel.QueueDeclare(
			queue, // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}

		// Routing key equals the queue name on a direct exchange.
		err = c.channel.QueueBind(queue, queue, c.exchangeName, false, nil)
		if err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}

	return nil
}

// PublishExportSync publishes a sync message for one assignment.
func (c *Client) PublishExportSync(ctx context.Context, assignmentID int64) error {
	msg := NewExportSyncMessage(assignmentID)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := c.publish(ctx, c.syncQueue, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published export sync message",
		"assignment_id", assignmentID,
		"exchange", c.exchangeName,
		"queue", c.syncQueue)

	return nil
}

// PublishExportDelete publishes a delete message for one assignment.
func (c *Client) PublishExportDelete(ctx context.Context, assignmentID int64) error {
	msg := NewExportDeleteMessage(assignmentID)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := c.publish(ctx, c.deleteQueue, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published export delete message",
		"assignment_id", assignmentID,
		"exchange", c.exchangeName,
		"queue", c.deleteQueue)

	return nil
}

func (c *Client) publish(ctx context.Context, routingKey string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	return nil
}

// ConsumeExportSync blocks handling sync messages until ctx is canceled.
func (c *Client) ConsumeExportSync(ctx context.Context, handler func(*ExportSyncMessage) error) error {
	return c.consume(ctx, c.syncQueue, func(body []byte) error {
		msg, err := ExportSyncMessageFromJSON(body)
		if err != nil {
			return errBadMessage{err}
		}
		return handler(msg)
	})
}

// ConsumeExportDelete blocks handling delete messages until ctx is canceled.
func (c *Client) ConsumeExportDelete(ctx context.Context, handler func(*ExportDeleteMessage) error) error {
	return c.consume(ctx, c.deleteQueue, func(body []byte) error {
		msg, err := ExportDeleteMessageFromJSON(body)
		if err != nil {
			return errBadMessage{err}
		}
		return handler(msg)
	})
}

// errBadMessage marks payloads that can never be processed. They are rejected
// without requeue instead of looping forever.
type errBadMessage struct{ err error }

func (e errBadMessage) Error() string { return fmt.Sprintf("bad message: %v", e.err) }
func (e errBadMessage) Unwrap() error { return e.err }

func (c *Client) consume(ctx context.Context, queue string, handle func([]byte) error) error {
	msgs, err := c.channel.Consume(
		queue, // queue
		"",    // consumer
		false, // auto-ack (we want manual ack)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming export messages", "queue", queue)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "queue", queue, "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			if err := handle(delivery.Body); err != nil {
				var bad errBadMessage
				if errors.As(err, &bad) {
					slog.ErrorContext(ctx, "Discarding malformed message", "queue", queue, "error", err)
					delivery.Nack(false, false)
					continue
				}
				slog.ErrorContext(ctx, "Failed to handle message", "queue", queue, "error", err)
				delivery.Nack(false, true) // requeue for retry
				continue
			}

			delivery.Ack(false)
		}
	}
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
