// Package report escalates kit transactions that need an operator to Sentry.
package report

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/engine"
)

// flushTimeout bounds the delivery of buffered events on shutdown.
const flushTimeout = 2 * time.Second

// Init initialises the Sentry client. An empty DSN disables reporting to Sentry without failing.
func Init(dsn, release string) error {
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          release,
		AttachStacktrace: true,
	}); err != nil {
		return fmt.Errorf("init sentry: %w", err)
	}
	return nil
}

// Flush waits for buffered events to be delivered.
func Flush() {
	sentry.Flush(flushTimeout)
}

// Sentry is an engine.Reporter that logs reconciliations and captures them as Sentry events.
type Sentry struct {
	log *slog.Logger
	hub *sentry.Hub
}

// NewSentry returns a Sentry reporter capturing events on hub, or on the current hub if hub is nil.
func NewSentry(log *slog.Logger, hub *sentry.Hub) *Sentry {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &Sentry{log: log, hub: hub}
}

// Report ...
func (s *Sentry) Report(r engine.Reconciliation) {
	engine.LogReporter{Log: s.log}.Report(r)

	hub := s.hub.Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelError)
		scope.SetTags(map[string]string{
			"kit":    r.Kit,
			"tx":     r.TxID,
			"player": r.Player.String(),
		})
		scope.SetUser(sentry.User{ID: r.Player.String(), Username: r.Name})
		scope.SetContext("reconciliation", sentry.Context{
			"amount":       r.Amount.String(),
			"cause":        errorString(r.Cause),
			"refund_error": errorString(r.RefundErr),
			"at":           r.At.UTC().Format(time.RFC3339),
		})
		scope.SetFingerprint([]string{"openkits-reconciliation", r.Kit})
		hub.CaptureException(fmt.Errorf("kit charge of %s could not be refunded: %w", r.Amount, r.RefundErr))
	})
}

// errorString ...
func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
