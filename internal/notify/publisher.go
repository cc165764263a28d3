package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"
)

// Publisher accepts messages for delivery.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// InlinePublisher delivers synchronously through a Dispatcher. It is used when
// no broker is configured.
type InlinePublisher struct {
	dispatcher *Dispatcher
}

// NewInlinePublisher creates an InlinePublisher.
func NewInlinePublisher(d *Dispatcher) *InlinePublisher {
	return &InlinePublisher{dispatcher: d}
}

// Publish implements Publisher.
func (p *InlinePublisher) Publish(ctx context.Context, msg Message) error {
	return p.dispatcher.Dispatch(ctx, msg)
}

// Broker owns the AMQP connection and the declared notification queue.
type Broker struct {
	conn  *amqp.Connection
	queue string
}

// DialBroker connects to the broker and declares a durable queue.
func DialBroker(url, queue string) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("error connecting to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("error opening channel: %w", err)
	}
	defer ch.Close()

	_, err = ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("error declaring queue: %w", err)
	}
	return &Broker{conn: conn, queue: queue}, nil
}

// Queue returns the queue name.
func (b *Broker) Queue() string { return b.queue }

// Channel opens a new channel on the connection.
func (b *Broker) Channel() (*amqp.Channel, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("error opening channel: %w", err)
	}
	return ch, nil
}

// NotifyClose forwards connection closure errors.
func (b *Broker) NotifyClose(c chan *amqp.Error) chan *amqp.Error {
	return b.conn.NotifyClose(c)
}

// Close closes the connection and every channel on it.
func (b *Broker) Close() error {
	return b.conn.Close()
}

// AMQPPublisher publishes JSON messages as persistent deliveries.
type AMQPPublisher struct {
	mu    sync.Mutex
	ch    *amqp.Channel
	queue string
}

// NewAMQPPublisher opens a dedicated channel for publishing.
func NewAMQPPublisher(b *Broker) (*AMQPPublisher, error) {
	ch, err := b.Channel()
	if err != nil {
		return nil, err
	}
	return &AMQPPublisher{ch: ch, queue: b.queue}, nil
}

// Publish implements Publisher.
func (p *AMQPPublisher) Publish(_ context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.Publish(
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ID,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish a message: %w", err)
	}
	return nil
}

// Close closes the publishing channel.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.Close()
}
