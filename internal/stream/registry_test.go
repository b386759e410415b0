package stream_test

import (
	"testing"
	"time"

	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/model"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/progress"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/stream"
)

func event(executionID string) model.ProgressEvent {
	return model.ProgressEvent{
		Type:        model.EventProgress,
		ExecutionID: executionID,
		Progress:    30,
		Cancelable:  true,
		Timestamp:   time.Now().UTC(),
	}
}

func recv(t *testing.T, conn *stream.Connection) *model.ProgressEvent {
	t.Helper()
	select {
	case ev := <-conn.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func assertNoEvent(t *testing.T, conn *stream.Connection) {
	t.Helper()
	select {
	case ev := <-conn.Events():
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishFanOutFiltering(t *testing.T) {
	reg := stream.NewRegistry(nil)
	router := stream.NewRouter(reg)

	// Two connections for user1: one pinned to e1, one unfiltered.
	// A third connection belongs to a different user.
	pinned := reg.Register("user1", progress.LevelUserFriendly, "e1")
	broad := reg.Register("user1", progress.LevelUserFriendly, "")
	other := reg.Register("user2", progress.LevelUserFriendly, "")

	router.Publish("user1", nil, event("e1"))

	if ev := recv(t, pinned); ev.ExecutionID != "e1" {
		t.Errorf("pinned connection got execution %q, want e1", ev.ExecutionID)
	}
	if ev := recv(t, broad); ev.ExecutionID != "e1" {
		t.Errorf("broad connection got execution %q, want e1", ev.ExecutionID)
	}
	assertNoEvent(t, other)

	// An event for a different execution of user1 skips the pinned connection.
	router.Publish("user1", nil, event("e2"))
	if ev := recv(t, broad); ev.ExecutionID != "e2" {
		t.Errorf("broad connection got execution %q, want e2", ev.ExecutionID)
	}
	assertNoEvent(t, pinned)
}

func TestPublishRendersPerConnectionLevel(t *testing.T) {
	reg := stream.NewRegistry(nil)
	router := stream.NewRouter(reg)

	friendly := reg.Register("user1", progress.LevelUserFriendly, "")
	debug := reg.Register("user1", progress.LevelDebug, "")

	step := &progress.Step{
		ID:        "generate",
		Weight:    50,
		UserText:  "Creating your image...",
		DebugText: "POST /v1/images/generations model=dall-e-3",
	}
	router.Publish("user1", step, event("e1"))

	if ev := recv(t, friendly); ev.Message != "Creating your image..." {
		t.Errorf("user_friendly message: got %q", ev.Message)
	}
	if ev := recv(t, debug); ev.Message != "POST /v1/images/generations model=dall-e-3" {
		t.Errorf("debug message: got %q", ev.Message)
	}
}

func TestUpdateSubscription(t *testing.T) {
	reg := stream.NewRegistry(nil)
	router := stream.NewRouter(reg)

	conn := reg.Register("user1", progress.LevelUserFriendly, "e1")
	if !reg.UpdateSubscription(conn.ID, "e2") {
		t.Fatal("UpdateSubscription returned false for live connection")
	}

	router.Publish("user1", nil, event("e1"))
	assertNoEvent(t, conn)

	router.Publish("user1", nil, event("e2"))
	if ev := recv(t, conn); ev.ExecutionID != "e2" {
		t.Errorf("got execution %q, want e2", ev.ExecutionID)
	}

	if reg.UpdateSubscription("no-such-conn", "e1") {
		t.Error("UpdateSubscription returned true for unknown connection")
	}
}

func TestUnregisterClosesChannel(t *testing.T) {
	reg := stream.NewRegistry(nil)
	conn := reg.Register("user1", progress.LevelUserFriendly, "")

	reg.Unregister(conn.ID)
	if _, open := <-conn.Events(); open {
		t.Error("channel still open after unregister")
	}
	// Unregistering twice must not panic.
	reg.Unregister(conn.ID)
}

func TestSlowConsumerDropsEvents(t *testing.T) {
	reg := stream.NewRegistry(nil)
	router := stream.NewRouter(reg)
	conn := reg.Register("user1", progress.LevelUserFriendly, "")

	// Overfill the buffer; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			router.Publish("user1", nil, event("e1"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow consumer")
	}
	_ = conn
}
