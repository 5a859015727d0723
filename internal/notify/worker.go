package notify

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

type popper interface {
	Pop(ctx context.Context, timeout time.Duration) ([]byte, bool, error)
}

// Worker drains the outbound queue. Failed sends are logged and dropped.
type Worker struct {
	queue       popper
	sender      Sender
	logger      zerolog.Logger
	pollTimeout time.Duration
	sendTimeout time.Duration
}

func NewWorker(q popper, s Sender, logger zerolog.Logger, pollTimeout time.Duration) *Worker {
	return &Worker{
		queue:       q,
		sender:      s,
		logger:      logger,
		pollTimeout: pollTimeout,
		sendTimeout: 15 * time.Second,
	}
}

// Run processes messages until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := w.RunOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			w.logger.Error().Err(err).Msg("notification queue poll failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

// RunOnce handles at most one queued message and reports whether one was
// found.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	payload, ok, err := w.queue.Pop(ctx, w.pollTimeout)
	if err != nil || !ok {
		return false, err
	}

	msg, err := Decode(payload)
	if err != nil {
		w.logger.Warn().Err(err).Msg("dropping undecodable notification")
		return true, nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	defer cancel()

	start := time.Now()
	if err := w.sender.Send(sendCtx, msg); err != nil {
		w.logger.Warn().Err(err).Str("kind", string(msg.Kind)).Str("to", msg.To).Msg("notification send failed")
		return true, nil
	}

	w.logger.Info().
		Str("kind", string(msg.Kind)).
		Str("to", msg.To).
		Dur("duration", time.Since(start)).
		Msg("notification sent")
	return true, nil
}
