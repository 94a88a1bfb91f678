package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingSender struct {
	calls     atomic.Int64
	delivered chan string
	fail      bool
}

func (c *countingSender) SendPasswordReset(_ context.Context, toEmail, _, _ string) error {
	c.calls.Add(1)
	if c.fail {
		return errors.New("delivery refused")
	}
	select {
	case c.delivered <- toEmail:
	default:
	}
	return nil
}

func TestOutboxDeliversQueuedJob(t *testing.T) {
	sender := &countingSender{delivered: make(chan string, 1)}
	outbox := NewNotificationOutbox(sender, 4, 0)
	outbox.Start()
	defer outbox.Stop()

	outbox.EnqueuePasswordReset("user@example.com", "Test User", "token")

	select {
	case email := <-sender.delivered:
		if email != "user@example.com" {
			t.Errorf("Delivered to %q, want user@example.com", email)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for delivery")
	}
}

func TestOutboxEnqueueNeverBlocksWhenFull(t *testing.T) {
	// No worker running, queue size 1: the second enqueue must drop.
	sender := &countingSender{delivered: make(chan string, 1)}
	outbox := NewNotificationOutbox(sender, 1, 0)

	done := make(chan struct{})
	go func() {
		outbox.EnqueuePasswordReset("first@example.com", "First", "t1")
		outbox.EnqueuePasswordReset("second@example.com", "Second", "t2")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
}

func TestOutboxGivesUpAfterMaxRetries(t *testing.T) {
	sender := &countingSender{delivered: make(chan string, 1), fail: true}
	outbox := NewNotificationOutbox(sender, 4, 0)
	outbox.Start()

	outbox.EnqueuePasswordReset("user@example.com", "Test User", "token")

	deadline := time.Now().Add(2 * time.Second)
	for sender.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	outbox.Stop()

	if got := sender.calls.Load(); got != 1 {
		t.Errorf("Expected exactly 1 attempt with no retries, got %d", got)
	}
}

func TestOutboxStopIsIdempotent(t *testing.T) {
	sender := &countingSender{delivered: make(chan string, 1)}
	outbox := NewNotificationOutbox(sender, 1, 0)
	outbox.Start()

	outbox.Stop()
	outbox.Stop()
}
