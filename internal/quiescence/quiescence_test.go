package quiescence

import (
	"sync"
	"testing"
	"time"
)

func TestQuiescentRequiresAllWaitingAndNoInFlight(t *testing.T) {
	c := New()
	if c.Quiescent(2) {
		t.Fatalf("expected not quiescent with no nodes waiting")
	}
	c.NodeWaiting()
	c.NodeWaiting()
	if !c.Quiescent(2) {
		t.Fatalf("expected quiescent once both nodes wait with no in-flight messages")
	}
	c.MessageSent()
	if c.Quiescent(2) {
		t.Fatalf("expected not quiescent with a message in flight")
	}
	c.MessageHandled()
	if !c.Quiescent(2) {
		t.Fatalf("expected quiescent again once in-flight message resolves")
	}
}

func TestForceFinishOverridesQuiescence(t *testing.T) {
	c := New()
	c.MessageSent()
	if c.Quiescent(1) {
		t.Fatalf("expected not quiescent before force finish")
	}
	c.ForceFinish()
	if !c.Quiescent(1) {
		t.Fatalf("expected quiescent once force finish is set")
	}
	if !c.ForceFinished() {
		t.Fatalf("expected ForceFinished() to report true")
	}
}

func TestWaitQuiescentUnblocksOnBroadcast(t *testing.T) {
	c := New()
	c.MessageSent()

	var wg sync.WaitGroup
	wg.Add(1)
	done := make(chan struct{})
	go func() {
		defer wg.Done()
		c.NodeWaiting()
		c.WaitQuiescent(1)
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("WaitQuiescent returned before the in-flight message resolved")
	case <-time.After(20 * time.Millisecond):
	}

	c.MessageHandled()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("WaitQuiescent did not unblock after message resolved")
	}
	wg.Wait()
}

func TestMessagesHandledBatch(t *testing.T) {
	c := New()
	c.MessageSent()
	c.MessageSent()
	c.MessageSent()
	c.MessagesHandled(3)
	if !c.Quiescent(0) {
		t.Fatalf("expected quiescent after batch decrement balances sent messages")
	}
}

func TestWaitAllWaitingIgnoresInFlight(t *testing.T) {
	c := New()
	c.MessageSent()

	var wg sync.WaitGroup
	wg.Add(1)
	done := make(chan struct{})
	go func() {
		defer wg.Done()
		c.WaitAllWaiting(1)
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("WaitAllWaiting returned before any node had arrived")
	case <-time.After(20 * time.Millisecond):
	}

	c.NodeWaiting()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("WaitAllWaiting did not unblock once the node arrived, despite a message still in flight")
	}
	wg.Wait()
}

func TestResetWaitingDoesNotAffectInFlight(t *testing.T) {
	c := New()
	c.NodeWaiting()
	c.MessageSent()
	c.ResetWaiting()
	if c.Quiescent(0) {
		t.Fatalf("expected in-flight message to still block quiescence after reset")
	}
}
