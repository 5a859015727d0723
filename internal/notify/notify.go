// Package notify delivers best-effort email about bookings. Callers never
// wait on delivery and never see delivery errors beyond a log line.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// Message is a rendered email ready to send.
type Message struct {
	Kind    Kind   `json:"kind"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Notifier accepts a message for eventual delivery.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Sender performs the actual delivery.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type pusher interface {
	Push(ctx context.Context, payload []byte) error
}

// QueueNotifier enqueues messages for cmd/notify-worker.
type QueueNotifier struct {
	queue pusher
}

func NewQueueNotifier(q pusher) *QueueNotifier {
	return &QueueNotifier{queue: q}
}

func (n *QueueNotifier) Notify(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return n.queue.Push(ctx, data)
}

// InlineNotifier sends straight through a Sender from the calling goroutine.
type InlineNotifier struct {
	sender Sender
}

func NewInlineNotifier(s Sender) *InlineNotifier {
	return &InlineNotifier{sender: s}
}

func (n *InlineNotifier) Notify(ctx context.Context, msg Message) error {
	return n.sender.Send(ctx, msg)
}

// LogNotifier only records what would have been sent.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.logger.Info().
		Str("kind", string(msg.Kind)).
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Msg("notification")
	return nil
}

// Decode parses a queued payload.
func Decode(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, fmt.Errorf("decode notification: %w", err)
	}
	return msg, nil
}
