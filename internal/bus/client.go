package bus

// Client is a per-subscriber handle on a single channel. It carries only
// the channel pointer and the subscriber id, never the channel's
// internal state directly, per spec.md's arena-ownership note: a client
// holds the broker's ChannelId equivalent, never the Channel's guts.
type Client struct {
	channel *Channel
	id      string
}

// TryReceive polls for the next due envelope for this subscriber.
func (c *Client) TryReceive(now float64) (Envelope, bool) {
	return c.channel.TryReceive(c.id, now)
}

// Unsubscribe drops this client's registration and cursor on its channel.
func (c *Client) Unsubscribe() {
	c.channel.Unsubscribe(c.id)
}

// NextTime reports the effective delivery time of this client's next
// pending envelope, if any.
func (c *Client) NextTime() (float64, bool) {
	return c.channel.NextTime(c.id)
}

// MultiClient spans several channels, composed at subtree-subscribe time.
// TryReceive returns the earliest-ready envelope across every constituent
// channel, so a subscriber to a parent path observes the union of its
// children's traffic in timestamp order.
type MultiClient struct {
	id      string
	clients []*Client
}

// TryReceive previews every constituent channel, picks whichever has the
// earliest-timestamped ready envelope, and consumes it from that channel.
func (m *MultiClient) TryReceive(now float64) (Envelope, bool) {
	bestIdx := -1
	var best Envelope
	for i, c := range m.clients {
		env, ok := c.channel.Peek(c.id, now)
		if !ok {
			continue
		}
		if bestIdx == -1 || env.Timestamp < best.Timestamp {
			best, bestIdx = env, i
		}
	}
	if bestIdx == -1 {
		return Envelope{}, false
	}
	return m.clients[bestIdx].TryReceive(now)
}

// Unsubscribe drops this client's registration from every constituent
// channel.
func (m *MultiClient) Unsubscribe() {
	for _, c := range m.clients {
		c.Unsubscribe()
	}
}

// Channels reports how many leaf channels this MultiClient currently
// spans.
func (m *MultiClient) Channels() int { return len(m.clients) }

// NextTime reports the earliest effective delivery time across every
// constituent channel, if any has a pending envelope.
func (m *MultiClient) NextTime() (float64, bool) {
	best, ok := 0.0, false
	for _, c := range m.clients {
		t, has := c.NextTime()
		if !has {
			continue
		}
		if !ok || t < best {
			best, ok = t, true
		}
	}
	return best, ok
}
