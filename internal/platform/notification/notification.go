// Package notification delivers best-effort status notifications to agents.
// Delivery transports (Telegram bot, email) live outside this service; the
// sink here only hands messages off and never lets a delivery failure
// propagate into business flows.
package notification

import (
	"context"

	"github.com/rs/zerolog"
)

// Sink is the external notification collaborator. Implementations must be
// safe for concurrent use.
type Sink interface {
	Notify(ctx context.Context, agentExternalID, message string) error
}

// LogSink writes notifications to the process log. Used in development and
// as the fallback when no transport is configured.
type LogSink struct {
	Logger zerolog.Logger
}

func (s *LogSink) Notify(_ context.Context, agentExternalID, message string) error {
	s.Logger.Info().
		Str("agent_external_id", agentExternalID).
		Str("message", message).
		Msg("notification")
	return nil
}

// NopSink discards notifications. Used in tests.
type NopSink struct{}

func (NopSink) Notify(context.Context, string, string) error { return nil }

// BestEffort wraps a sink so failures are logged and swallowed. Business
// flows call through this wrapper; a dead transport must never affect
// payment or referral state.
type BestEffort struct {
	Sink   Sink
	Logger zerolog.Logger
}

func (b *BestEffort) Notify(ctx context.Context, agentExternalID, message string) {
	if b.Sink == nil {
		return
	}
	if err := b.Sink.Notify(ctx, agentExternalID, message); err != nil {
		b.Logger.Warn().Err(err).
			Str("agent_external_id", agentExternalID).
			Msg("notification delivery failed")
	}
}
