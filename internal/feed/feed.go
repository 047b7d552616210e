// Package feed maintains the connection to the venue's whale-activity feed
// and keeps the subscription set equal to the tracked whale addresses.
package feed

import "context"

// RawFrame is one unparsed message from the feed.
type RawFrame struct {
	Data       []byte
	ReceivedAt int64 // ms, local clock at receive time
}

// Source produces a sequence of raw frames for a set of subscribed whale
// addresses. Both the websocket client and the REST polling client satisfy
// it; the engine does not care which transport is wired.
type Source interface {
	// Connect establishes the transport with bounded retries. Exhausting
	// the retries returns an error and fails the current cycle only; the
	// caller retries on its next loop.
	Connect(ctx context.Context) error

	// ReconcileSubscriptions diffs desired against currently subscribed,
	// subscribing additions and unsubscribing removals. Calling twice with
	// the same set is a no-op.
	ReconcileSubscriptions(desired []string) error

	// Frames returns the stream of raw frames. The channel is closed only
	// on explicit shutdown; transport drops are handled internally with
	// backoff and resubscription.
	Frames() <-chan RawFrame

	// Subscribed returns the currently subscribed addresses.
	Subscribed() []string

	// State reports the transport's connection state so the engine can
	// surface a feed that cannot reconnect in its liveness signal.
	State() State

	// Close shuts the transport down. Idempotent.
	Close() error
}
