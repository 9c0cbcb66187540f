// Package rpc implements the blocking request/response service layer
// built on top of the bus: a host node registers a Service, clients send
// requests that block the scheduler (via in-flight accounting) until the
// host serves them during its own time step.
//
// Grounded on original_source/simba-core/src/networking/service.rs and,
// for the request/response-over-a-channel shape, the teacher's
// internal/timesync/service.go (a clockProvider wrapped by a blocking
// streaming service).
package rpc

import (
	"fmt"
	"sync"

	"simba/internal/quiescence"
	"simba/internal/simerr"
	"simba/internal/tob"
)

// Request pairs a client id with its payload, as posted to a Service's
// request buffer.
type Request[Req any] struct {
	ClientID string
	Payload  Req
}

// Result is the Ok/Err outcome delivered back to a client.
type Result[Resp any] struct {
	Value Resp
	Err   error
}

// Handler serves one request on the host's time step.
type Handler[Req, Resp any] func(clientID string, req Req) (Resp, error)

// Service is a blocking Req/Resp channel layered on the broker's
// in-flight accounting: a pending request keeps in_flight_messages above
// zero until HandleRequests serves it, and the resulting response keeps
// it above zero again until the client consumes it with TryRecv.
type Service[Req, Resp any] struct {
	mu        sync.Mutex
	name      string
	requests  *tob.Buffer[Request[Req]]
	responses map[string][]Result[Resp]
	alive     bool
	counter   *quiescence.Counter
}

// New constructs a Service named name (used in ServiceError messages),
// quantized at quantum, wired to counter for in-flight accounting.
func New[Req, Resp any](name string, quantum float64, counter *quiescence.Counter) *Service[Req, Resp] {
	return &Service[Req, Resp]{
		name:      name,
		requests:  tob.New[Request[Req]](quantum),
		responses: make(map[string][]Result[Resp]),
		alive:     true,
		counter:   counter,
	}
}

// Register enrolls clientID as a recipient of responses and returns its
// Client handle.
func (s *Service[Req, Resp]) Register(clientID string) *Client[Req, Resp] {
	s.mu.Lock()
	if _, ok := s.responses[clientID]; !ok {
		s.responses[clientID] = nil
	}
	s.mu.Unlock()
	return &Client[Req, Resp]{service: s, id: clientID}
}

// Unregister drops clientID's response queue, e.g. when its node tears
// down.
func (s *Service[Req, Resp]) Unregister(clientID string) {
	s.mu.Lock()
	delete(s.responses, clientID)
	s.mu.Unlock()
}

// NextRequestTime reports the earliest pending request's timestamp, for
// the node step machine's proposed_next_time computation.
func (s *Service[Req, Resp]) NextRequestTime() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests.MinTime()
}

// HandleRequests serves every request pending at exactly t, invoking
// handler for each and posting the result back to the originating
// client. A handler panic is recovered and turned into a ServiceError of
// kind Other rather than propagating. Returns how many requests were
// served, for the caller to account for the decrement this performs.
func (s *Service[Req, Resp]) HandleRequests(t float64, handler Handler[Req, Resp]) int {
	s.mu.Lock()
	popped := s.requests.PopAt(t)
	s.mu.Unlock()
	if len(popped) == 0 {
		return 0
	}
	if s.counter != nil {
		s.counter.MessagesHandled(len(popped))
	}

	for _, entry := range popped {
		resp, err := s.invoke(handler, entry.Value.ClientID, entry.Value.Payload)
		s.mu.Lock()
		if _, ok := s.responses[entry.Value.ClientID]; ok {
			s.responses[entry.Value.ClientID] = append(s.responses[entry.Value.ClientID], Result[Resp]{Value: resp, Err: err})
			s.mu.Unlock()
			if s.counter != nil {
				s.counter.MessageSent()
			}
			continue
		}
		s.mu.Unlock()
	}
	return len(popped)
}

func (s *Service[Req, Resp]) invoke(handler Handler[Req, Resp], clientID string, req Req) (resp Resp, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = simerr.NewServiceError(s.name, simerr.ServiceOther, fmt.Errorf("handler panic: %v", r))
		}
	}()
	return handler(clientID, req)
}

// Close flushes a final ServiceClosed error to every registered client
// and marks the service no longer alive; subsequent Request calls fail
// immediately.
func (s *Service[Req, Resp]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive {
		return
	}
	s.alive = false
	for id := range s.responses {
		s.responses[id] = append(s.responses[id], Result[Resp]{Err: simerr.NewServiceError(s.name, simerr.ServiceClosed, nil)})
		if s.counter != nil {
			s.counter.MessageSent()
		}
	}
}

// Alive reports whether the service still accepts requests.
func (s *Service[Req, Resp]) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}
