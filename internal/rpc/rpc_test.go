package rpc

import (
	"errors"
	"testing"

	"simba/internal/quiescence"
	"simba/internal/simerr"
)

func TestRequestThenHandleThenRecv(t *testing.T) {
	counter := quiescence.New()
	svc := New[string, int]("echo-len", 0, counter)
	client := svc.Register("client-a")

	if err := client.Request("hello", 1.0); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if _, _, ok := client.TryRecv(); ok {
		t.Fatalf("expected no response before HandleRequests")
	}

	served := svc.HandleRequests(1.0, func(clientID string, req string) (int, error) {
		if clientID != "client-a" {
			t.Fatalf("unexpected clientID %q", clientID)
		}
		return len(req), nil
	})
	if served != 1 {
		t.Fatalf("HandleRequests served = %d, want 1", served)
	}

	resp, err, ok := client.TryRecv()
	if !ok || err != nil || resp != 5 {
		t.Fatalf("TryRecv = %v,%v,%v want 5,nil,true", resp, err, ok)
	}
}

func TestHandleRequestsOnlyServesExactTime(t *testing.T) {
	counter := quiescence.New()
	svc := New[int, int]("double", 0, counter)
	client := svc.Register("c")
	client.Request(1, 5.0)

	if served := svc.HandleRequests(4.0, func(string, int) (int, error) { return 0, nil }); served != 0 {
		t.Fatalf("expected no requests served at the wrong time, got %d", served)
	}
	served := svc.HandleRequests(5.0, func(_ string, req int) (int, error) { return req * 2, nil })
	if served != 1 {
		t.Fatalf("expected 1 request served at its own time, got %d", served)
	}
}

func TestHandlerPanicBecomesServiceError(t *testing.T) {
	counter := quiescence.New()
	svc := New[int, int]("flaky", 0, counter)
	client := svc.Register("c")
	client.Request(1, 1.0)

	svc.HandleRequests(1.0, func(string, int) (int, error) {
		panic("boom")
	})

	_, err, ok := client.TryRecv()
	if !ok {
		t.Fatalf("expected a response even when the handler panics")
	}
	var se *simerr.ServiceError
	if !errors.As(err, &se) || se.Kind != simerr.ServiceOther {
		t.Fatalf("expected ServiceError{Other}, got %v", err)
	}
}

func TestClosedServiceRejectsNewRequests(t *testing.T) {
	counter := quiescence.New()
	svc := New[int, int]("svc", 0, counter)
	client := svc.Register("c")
	svc.Close()

	err := client.Request(1, 0)
	if !errors.Is(err, simerr.ErrServiceClosed) {
		t.Fatalf("expected ErrServiceClosed, got %v", err)
	}
}

func TestCloseFlushesServiceClosedToRegisteredClients(t *testing.T) {
	counter := quiescence.New()
	svc := New[int, int]("svc", 0, counter)
	client := svc.Register("c")
	svc.Close()

	_, err, ok := client.TryRecv()
	if !ok {
		t.Fatalf("expected a flushed ServiceClosed response")
	}
	if !errors.Is(err, simerr.ErrServiceClosed) {
		t.Fatalf("expected ErrServiceClosed, got %v", err)
	}
}

func TestResponseToVanishedClientIsDroppedSilently(t *testing.T) {
	counter := quiescence.New()
	svc := New[int, int]("svc", 0, counter)
	client := svc.Register("c")
	client.Request(1, 1.0)
	client.Close()

	served := svc.HandleRequests(1.0, func(string, int) (int, error) { return 42, nil })
	if served != 1 {
		t.Fatalf("expected the request to still be popped and served, got %d", served)
	}
	if _, inFlight, _ := counter.Snapshot(); inFlight != 0 {
		t.Fatalf("expected in-flight to settle at 0 when the response has nowhere to go, got %d", inFlight)
	}
}

func TestInFlightBalancesAcrossRequestServeAndRecv(t *testing.T) {
	counter := quiescence.New()
	svc := New[int, int]("svc", 0, counter)
	client := svc.Register("c")

	client.Request(1, 1.0)
	if _, inFlight, _ := counter.Snapshot(); inFlight != 1 {
		t.Fatalf("expected in-flight 1 after Request, got %d", inFlight)
	}

	svc.HandleRequests(1.0, func(string, int) (int, error) { return 2, nil })
	if _, inFlight, _ := counter.Snapshot(); inFlight != 1 {
		t.Fatalf("expected in-flight to still be 1 (response pending), got %d", inFlight)
	}

	client.TryRecv()
	if _, inFlight, _ := counter.Snapshot(); inFlight != 0 {
		t.Fatalf("expected in-flight to settle at 0 after TryRecv, got %d", inFlight)
	}
}

func TestNextRequestTime(t *testing.T) {
	counter := quiescence.New()
	svc := New[int, int]("svc", 0, counter)
	if _, ok := svc.NextRequestTime(); ok {
		t.Fatalf("expected no next request time on an empty service")
	}
	client := svc.Register("c")
	client.Request(1, 4.5)
	next, ok := svc.NextRequestTime()
	if !ok || next != 4.5 {
		t.Fatalf("NextRequestTime() = %v,%v want 4.5,true", next, ok)
	}
}
