package rpc

import "simba/internal/simerr"

// Client is a service consumer's handle: it can post a request and later
// poll for the response. Matches spec.md's Client.request/try_recv pair.
type Client[Req, Resp any] struct {
	service *Service[Req, Resp]
	id      string
}

// Request posts req to the service's request buffer at timestamp now and
// returns immediately; the response is retrieved later via TryRecv.
// Fails with a ServiceError of kind Closed if the service has already
// shut down.
func (c *Client[Req, Resp]) Request(req Req, now float64) error {
	s := c.service
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return simerr.NewServiceError(s.name, simerr.ServiceClosed, nil)
	}
	s.requests.Insert(now, Request[Req]{ClientID: c.id, Payload: req}, false)
	s.mu.Unlock()
	if s.counter != nil {
		s.counter.MessageSent()
	}
	return nil
}

// TryRecv returns the next queued response for this client, if any. The
// second return value reports whether a response was available.
func (c *Client[Req, Resp]) TryRecv() (Resp, error, bool) {
	s := c.service
	s.mu.Lock()
	queue, ok := s.responses[c.id]
	if !ok || len(queue) == 0 {
		s.mu.Unlock()
		var zero Resp
		return zero, nil, false
	}
	res := queue[0]
	s.responses[c.id] = queue[1:]
	s.mu.Unlock()
	if s.counter != nil {
		s.counter.MessageHandled()
	}
	return res.Value, res.Err, true
}

// Close unregisters this client from its service.
func (c *Client[Req, Resp]) Close() {
	c.service.Unregister(c.id)
}
