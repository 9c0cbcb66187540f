package bus

import (
	"sync"

	"simba/internal/pathkey"
	"simba/internal/quiescence"
	"simba/internal/simerr"
	"simba/internal/spatial"
)

// Broker is the global router over channels: a map from channel key to
// Channel plus a path tree recording the hierarchy for subtree
// subscriptions. It holds the scheduler's quiescence counter so that
// Send (sender-side increment) and ProcessMessages (orchestrator-side
// decrement) keep in_flight_messages balanced, per the invariant that
// the broker is the sole writer of the decrement path.
//
// Grounded on original_source/simba-com/src/pub_sub/broker.rs's
// Broker<KeyType>.
type Broker struct {
	mu       sync.RWMutex
	channels map[string]*Channel
	tree     *pathkey.Tree
	counter  *quiescence.Counter
}

// NewBroker constructs an empty broker wired to counter.
func NewBroker(counter *quiescence.Counter) *Broker {
	return &Broker{
		channels: make(map[string]*Channel),
		tree:     pathkey.NewTree(),
		counter:  counter,
	}
}

// AddChannel registers a plain channel at key with no predicate.
func (b *Broker) AddChannel(key pathkey.Key, quantum float64) *Channel {
	return b.addChannel(key, quantum, nil)
}

// AddConditionalChannel registers a channel at key whose try_receive
// additionally requires predicate(msgCtx, subscriberCtx).
func (b *Broker) AddConditionalChannel(key pathkey.Key, quantum float64, predicate Predicate) *Channel {
	return b.addChannel(key, quantum, predicate)
}

// AddSubchannel is a convenience wrapper registering parent.Child(name).
func (b *Broker) AddSubchannel(parent pathkey.Key, name string, quantum float64) *Channel {
	return b.addChannel(parent.Child(name), quantum, nil)
}

func (b *Broker) addChannel(key pathkey.Key, quantum float64, predicate Predicate) *Channel {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := NewChannel(key, quantum, predicate)
	b.channels[key.String()] = ch
	b.tree.Add(key)
	return ch
}

// AddMetachannel registers key as an intermediate tree node with no
// channel object, so that a subtree subscription made before any of its
// children exist still resolves the path.
func (b *Broker) AddMetachannel(key pathkey.Key) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tree.Touch(key)
}

// Channel returns the registered channel at key, if any.
func (b *Broker) Channel(key pathkey.Key) (*Channel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ch, ok := b.channels[key.String()]
	return ch, ok
}

// Subscribe registers clientID on the channel at key and returns a
// Client handle. Returns NetworkError{ChannelNotFound} if key has no
// registered channel.
func (b *Broker) Subscribe(key pathkey.Key, clientID string, delay float64, ctx any) (*Client, error) {
	ch, ok := b.Channel(key)
	if !ok {
		return nil, simerr.NewNetworkError(simerr.NetworkChannelNotFound, key.String())
	}
	ch.Subscribe(clientID, delay, ctx)
	return &Client{channel: ch, id: clientID}, nil
}

// SubscribeSubtree enumerates every leaf channel at or beneath key at
// call time and composes a MultiClient over them. A channel added under
// key afterward is not retroactively included.
func (b *Broker) SubscribeSubtree(key pathkey.Key, clientID string, delay float64, ctx any) *MultiClient {
	b.mu.RLock()
	leaves := b.tree.Subtree(key)
	clients := make([]*Client, 0, len(leaves))
	for _, leaf := range leaves {
		ch, ok := b.channels[leaf.String()]
		if !ok {
			continue
		}
		ch.Subscribe(clientID, delay, ctx)
		clients = append(clients, &Client{channel: ch, id: clientID})
	}
	b.mu.RUnlock()
	return &MultiClient{id: clientID, clients: clients}
}

// Send enqueues env on its target channel, applying range-based
// subscriber eligibility using positions (keyed by node/subscriber id),
// and increments in_flight_messages for the enqueued copy. Returns
// NetworkError{ChannelNotFound} if the target channel is not registered.
func (b *Broker) Send(env Envelope, positions map[string]spatial.Position) error {
	ch, ok := b.Channel(env.Key)
	if !ok {
		return simerr.NewNetworkError(simerr.NetworkChannelNotFound, env.Key.String())
	}
	eligible := rangeEligibility(env, positions)
	ch.Enqueue(env, eligible)
	if b.counter != nil {
		b.counter.MessageSent()
	}
	return nil
}

// rangeEligibility returns the set of subscriber ids allowed to receive
// env under its broadcast range, or nil if the range is unlimited or
// positions are unavailable for the sender.
func rangeEligibility(env Envelope, positions map[string]spatial.Position) map[string]struct{} {
	if env.Range <= 0 || env.Range >= spatial.Unlimited || positions == nil {
		return nil
	}
	senderPos, ok := positions[env.From]
	if !ok {
		return nil
	}
	eligible := make(map[string]struct{})
	for id, pos := range positions {
		if spatial.Within(senderPos, pos, env.Range) {
			eligible[id] = struct{}{}
		}
	}
	return eligible
}

// ProcessMessages drains every channel's submission queue into its
// pending buffer and decrements in_flight_messages once per ingested
// envelope, finalizing the increments made by Send since the last call.
func (b *Broker) ProcessMessages() {
	b.mu.RLock()
	channels := make([]*Channel, 0, len(b.channels))
	for _, ch := range b.channels {
		channels = append(channels, ch)
	}
	b.mu.RUnlock()

	total := 0
	for _, ch := range channels {
		total += ch.Ingest()
	}
	if total > 0 && b.counter != nil {
		b.counter.MessagesHandled(total)
	}
}
