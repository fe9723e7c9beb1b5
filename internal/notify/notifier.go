// Package notify fans order alerts out to chat channels. Alerts are filtered
// by event name so operators receive only the ones they subscribed to.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Sender delivers one alert to a single channel.
type Sender interface {
	Send(ctx context.Context, alert Alert) error
	Name() string
}

// Alert is a rendered notification.
type Alert struct {
	Event   string
	Title   string
	Message string
}

// Notifier dispatches alerts to every Sender concurrently.
type Notifier struct {
	senders []Sender
	events  []string
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. events lists the event names that pass
// Notify; an entry ending in ".*" matches every event with that prefix and an
// empty list passes everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	var filter []string
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			filter = append(filter, e)
		}
	}
	return &Notifier{senders: senders, events: filter, logger: logger}
}

// Enabled reports whether at least one sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Allows reports whether event passes the filter.
func (n *Notifier) Allows(event string) bool {
	if len(n.events) == 0 {
		return true
	}
	for _, e := range n.events {
		if e == event {
			return true
		}
		if prefix, ok := strings.CutSuffix(e, "*"); ok && strings.HasPrefix(event, prefix) {
			return true
		}
	}
	return false
}

// Notify delivers the alert when event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Allows(event) {
		n.logger.DebugContext(ctx, "notify: event filtered", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, Alert{Event: event, Title: title, Message: message})
}

// dispatch sends to every sender. One sender failing does not stop the rest;
// all failures are joined.
func (n *Notifier) dispatch(ctx context.Context, alert Alert) error {
	errs := make([]error, len(n.senders))
	var wg sync.WaitGroup
	for i, s := range n.senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Send(ctx, alert); err != nil {
				n.logger.ErrorContext(ctx, "notify: sender failed",
					slog.String("sender", s.Name()),
					slog.String("event", alert.Event),
					slog.String("error", err.Error()),
				)
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
			}
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}
