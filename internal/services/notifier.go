package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/meincms/apiserver/internal/metrics"
)

// Notifier hands account emails to the delivery pipeline.
// Implementations must not block past the context deadline.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, to, token, displayName string) error
	SendPasswordResetEmail(ctx context.Context, to, token, displayName string) error
	SendWelcomeEmail(ctx context.Context, to, displayName string) error
}

const notifyTimeout = 5 * time.Second

// dispatcher sends notifications in the background so a request for a
// registered email costs the same as one for an unknown email.
type dispatcher struct {
	notifier Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	inflight sync.WaitGroup
}

func newDispatcher(notifier Notifier, logger *slog.Logger, m *metrics.Metrics) *dispatcher {
	return &dispatcher{notifier: notifier, logger: logger, metrics: m}
}

// send runs fn on its own goroutine, detached from the request's
// cancellation but bounded by notifyTimeout. Failures are logged and
// counted, never returned.
func (d *dispatcher) send(ctx context.Context, kind, recipient string, fn func(ctx context.Context, n Notifier) error) {
	if d.notifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		defer cancel()

		if err := fn(ctx, d.notifier); err != nil {
			d.metrics.NotificationFailed(kind)
			d.logger.Error("failed to send notification",
				slog.String("kind", kind),
				slog.String("recipient", recipient),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// wait blocks until every notification started so far has finished.
func (d *dispatcher) wait() {
	d.inflight.Wait()
}
