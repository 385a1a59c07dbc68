// Package notify delivers run summaries to users.
package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aristath/coinpilot/internal/domain"
)

var _ domain.Notifier = (*LogNotifier)(nil)

// LogNotifier writes notifications to the structured log. It stands in for
// a real delivery channel in development and paper-trading setups.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("service", "notify").Logger()}
}

// Notify logs the notification text for the user
func (n *LogNotifier) Notify(ctx context.Context, user, text string) error {
	n.log.Info().Str("user", user).Str("text", text).Msg("Notification")
	return nil
}

// ClearClients is a no-op; the log notifier holds no per-user state
func (n *LogNotifier) ClearClients(user string) {}
