package bus

import (
	"sync"

	"simba/internal/pathkey"
	"simba/internal/tob"
)

// Predicate decides, given the sending envelope's context and a
// subscriber's own context, whether that subscriber should receive the
// envelope. A nil predicate accepts every envelope.
type Predicate func(msgCtx, subscriberCtx any) bool

type item struct {
	env      Envelope
	seq      uint64
	eligible map[string]struct{} // nil means every subscriber is eligible
}

type cursor struct {
	time    float64
	seq     uint64
	started bool
}

func (c cursor) before(it item) bool {
	if !c.started {
		return true
	}
	if it.env.Timestamp != c.time {
		return it.env.Timestamp > c.time
	}
	return it.seq > c.seq
}

type subscriberState struct {
	id     string
	delay  float64
	ctx    any
	cursor cursor
}

// Channel is the per-key inbox: a concurrently-writable submission queue
// (one writer per node thread) feeding a time-ordered pending buffer that
// only the broker's ingest sweep mutates, plus an independent read
// cursor per subscriber.
//
// Grounded on original_source/simba-com/src/pub_sub/mod.rs's Channel,
// whose send/try_receive pair is mirrored here, and on the teacher's
// internal/events/stream.go subscriberState/mutex shape for the
// per-subscriber bookkeeping.
type Channel struct {
	key       pathkey.Key
	quantum   float64
	predicate Predicate

	submitMu sync.Mutex
	submit   []item
	nextSeq  uint64

	mu          sync.Mutex
	pending     *tob.Buffer[item]
	subscribers map[string]*subscriberState
}

// NewChannel constructs a channel bound to key with the given quantum and
// optional predicate (nil accepts everything).
func NewChannel(key pathkey.Key, quantum float64, predicate Predicate) *Channel {
	return &Channel{
		key:         key,
		quantum:     quantum,
		predicate:   predicate,
		pending:     tob.New[item](quantum),
		subscribers: make(map[string]*subscriberState),
	}
}

// Key returns the channel's bound path.
func (c *Channel) Key() pathkey.Key { return c.key }

// Enqueue places env on the submission queue. eligible, if non-nil,
// restricts delivery to the named subscriber ids (broadcast-by-range
// filtering); a nil map means every subscriber is eligible. Safe for
// concurrent use by multiple sender goroutines.
func (c *Channel) Enqueue(env Envelope, eligible map[string]struct{}) {
	c.submitMu.Lock()
	c.nextSeq++
	c.submit = append(c.submit, item{env: env, seq: c.nextSeq, eligible: eligible})
	c.submitMu.Unlock()
}

// Ingest drains the submission queue into the time-ordered pending
// buffer and returns how many envelopes were ingested. Must be called
// only by the broker's single-writer ingest sweep.
func (c *Channel) Ingest() int {
	c.submitMu.Lock()
	batch := c.submit
	c.submit = nil
	c.submitMu.Unlock()

	if len(batch) == 0 {
		return 0
	}
	c.mu.Lock()
	for _, it := range batch {
		c.pending.Insert(it.env.Timestamp, it, false)
	}
	c.mu.Unlock()
	return len(batch)
}

// Subscribe registers clientID with the given reception delay and
// predicate context, replacing any earlier registration (and cursor)
// under the same id.
func (c *Channel) Subscribe(clientID string, delay float64, ctx any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers[clientID] = &subscriberState{id: clientID, delay: delay, ctx: ctx}
}

// Unsubscribe removes clientID's registration and cursor state.
func (c *Channel) Unsubscribe(clientID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscribers, clientID)
}

// TryReceive implements the three-step scan: stop if the next candidate
// is not yet due, skip it (advancing past it) if the predicate or range
// eligibility rejects it for this subscriber, otherwise deliver it and
// advance past it.
func (c *Channel) TryReceive(clientID string, now float64) (Envelope, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subscribers[clientID]
	if !ok {
		return Envelope{}, false
	}

	half := c.quantum / 2
	for _, e := range c.pending.All() {
		it := e.Value
		if !sub.cursor.before(it) {
			continue
		}
		if !it.env.HasFlag(FlagGod) && it.env.Timestamp+sub.delay > now+half {
			return Envelope{}, false
		}
		if !it.env.HasFlag(FlagGod) {
			if it.eligible != nil {
				if _, ok := it.eligible[clientID]; !ok {
					sub.cursor = cursor{time: it.env.Timestamp, seq: it.seq, started: true}
					continue
				}
			}
			if c.predicate != nil && !c.predicate(it.env.Ctx, sub.ctx) {
				sub.cursor = cursor{time: it.env.Timestamp, seq: it.seq, started: true}
				continue
			}
		}
		sub.cursor = cursor{time: it.env.Timestamp, seq: it.seq, started: true}
		return it.env, true
	}
	return Envelope{}, false
}

// Peek previews what TryReceive would return for clientID without
// mutating its cursor. Used by MultiClient to pick the earliest-ready
// envelope across several channels.
func (c *Channel) Peek(clientID string, now float64) (Envelope, bool) {
	c.mu.Lock()
	sub, ok := c.subscribers[clientID]
	if !ok {
		c.mu.Unlock()
		return Envelope{}, false
	}
	cur := sub.cursor
	delay := sub.delay
	ctx := sub.ctx
	all := append([]tob.Entry[item](nil), c.pending.All()...)
	predicate := c.predicate
	half := c.quantum / 2
	c.mu.Unlock()

	for _, e := range all {
		it := e.Value
		if !cur.before(it) {
			continue
		}
		if !it.env.HasFlag(FlagGod) && it.env.Timestamp+delay > now+half {
			return Envelope{}, false
		}
		if !it.env.HasFlag(FlagGod) {
			if it.eligible != nil {
				if _, ok := it.eligible[clientID]; !ok {
					cur = cursor{time: it.env.Timestamp, seq: it.seq, started: true}
					continue
				}
			}
			if predicate != nil && !predicate(it.env.Ctx, ctx) {
				cur = cursor{time: it.env.Timestamp, seq: it.seq, started: true}
				continue
			}
		}
		return it.env, true
	}
	return Envelope{}, false
}

// Len reports how many envelopes have been ingested into the pending
// buffer, for diagnostics. Delivered envelopes are not removed from it,
// so the count includes them.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.Len()
}

// NextTime reports the effective delivery time (timestamp plus
// reception delay) of the earliest pending envelope this subscriber
// would eventually receive, ignoring whether it is already due. Used by
// the node step machine to fold broker traffic into its proposed next
// time.
func (c *Channel) NextTime(clientID string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subscribers[clientID]
	if !ok {
		return 0, false
	}
	cur := sub.cursor
	for _, e := range c.pending.All() {
		it := e.Value
		if !cur.before(it) {
			continue
		}
		if it.eligible != nil {
			if _, ok := it.eligible[clientID]; !ok {
				cur = cursor{time: it.env.Timestamp, seq: it.seq, started: true}
				continue
			}
		}
		if !it.env.HasFlag(FlagGod) && c.predicate != nil && !c.predicate(it.env.Ctx, sub.ctx) {
			cur = cursor{time: it.env.Timestamp, seq: it.seq, started: true}
			continue
		}
		return it.env.Timestamp + sub.delay, true
	}
	return 0, false
}
