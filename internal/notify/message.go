// Package notify delivers best-effort messages to users, admins and mailboxes.
//
// Services hand messages to a Notifier, which publishes them either inline or
// onto an AMQP queue. Consumers pull from the queue, de-duplicate by message
// id and deliver through a Dispatcher, republishing failed deliveries until
// the attempt limit is reached.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Kind selects the audience of a message.
type Kind string

const (
	KindUser  Kind = "user"
	KindAdmin Kind = "admin"
	KindEmail Kind = "email"
)

// Message is the queued unit of delivery.
type Message struct {
	ID      string `json:"id"`
	Kind    Kind   `json:"kind"`
	Event   string `json:"event,omitempty"`
	UserID  int64  `json:"userId,omitempty"`
	Title   string `json:"title,omitempty"`
	Body    string `json:"body"`
	To      string `json:"to,omitempty"`
	Subject string `json:"subject,omitempty"`
	Attempt int    `json:"attempt"`
}

// ErrNoSink is returned when a message kind has no registered sink.
var ErrNoSink = errors.New("no sink registered for message kind")

// Sink delivers a message to one destination.
type Sink interface {
	Deliver(ctx context.Context, msg Message) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, msg Message) error

// Deliver implements Sink.
func (f SinkFunc) Deliver(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Dispatcher routes messages to every sink registered for their kind.
type Dispatcher struct {
	sinks map[Kind][]Sink
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{sinks: make(map[Kind][]Sink)}
}

// Handle registers a sink for a kind.
func (d *Dispatcher) Handle(kind Kind, sink Sink) {
	d.sinks[kind] = append(d.sinks[kind], sink)
}

// Dispatch delivers msg to all sinks of its kind. Every sink is tried; the
// returned error joins the individual failures.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) error {
	sinks := d.sinks[msg.Kind]
	if len(sinks) == 0 {
		return fmt.Errorf("%w: %s", ErrNoSink, msg.Kind)
	}

	var errs []error
	for _, sink := range sinks {
		if err := sink.Deliver(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes messages to the application log. It stands in for mail
// delivery when no SMTP host is configured.
type LogSink struct{}

// Deliver implements Sink.
func (LogSink) Deliver(_ context.Context, msg Message) error {
	log.Info().
		Str("message_id", msg.ID).
		Str("kind", string(msg.Kind)).
		Str("event", msg.Event).
		Int64("user_id", msg.UserID).
		Str("to", msg.To).
		Str("title", msg.Title+msg.Subject).
		Msg("Notification")
	return nil
}
