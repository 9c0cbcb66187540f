// Package bus implements the hierarchical publish/subscribe message bus:
// channels keyed by a pathkey.Key, a broker that indexes them and fans
// out metachannel (subtree) subscriptions, and clients that publish and
// receive with per-subscriber reception delay and predicate filtering.
//
// Grounded on original_source/simba-com/src/pub_sub/broker.rs and
// original_source/simba-com/src/pub_sub/mod.rs, whose test module
// (subscribe_after_send, send_message_simple, late_reception,
// send_message_condition, reception_delay, path_broker_meta,
// path_broker) is mirrored almost directly by this package's tests.
package bus

import "simba/internal/pathkey"

// Flag marks special envelope handling.
type Flag int

const (
	// FlagNone carries no special handling.
	FlagNone Flag = 0
	// FlagGod marks a message that bypasses normal subscriber filtering
	// and predicate checks (administrative/debug channel).
	FlagGod Flag = 1 << 0
	// FlagKill asks the receiving node to terminate.
	FlagKill Flag = 1 << 1
	// FlagUnsubscribe marks an unsubscribe notice. Channel and Broker do
	// not act on it; receivers can test for it with HasFlag.
	FlagUnsubscribe Flag = 1 << 2
)

// Envelope is one published message travelling through a Channel.
type Envelope struct {
	From      string
	Key       pathkey.Key
	Payload   any
	Ctx       any
	Timestamp float64
	Range     float64
	Flags     Flag
}

// HasFlag reports whether f is set on the envelope.
func (e Envelope) HasFlag(f Flag) bool { return e.Flags&f != 0 }
