package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/cdproto/target"
)

func setupTestSource(t *testing.T) *Source {
	t.Helper()
	return &Source{
		cancel:      func() {},
		allocCancel: func() {},
		events:      make(chan Event, 1),
		ids:         make(map[target.ID]int),
		urls:        make(map[int]string),
		agents:      make(map[int]*agent),
	}
}

func TestEmitAfterShutdownIsDropped(t *testing.T) {
	s := setupTestSource(t)
	ctx := context.Background()

	s.emit(ctx, Event{Kind: TabLoaded, TabID: 1})
	if got := len(s.events); got != 1 {
		t.Fatalf("expected 1 buffered event before shutdown, got %d", got)
	}
	<-s.events

	s.shutdown()
	s.emit(ctx, Event{Kind: TabContentUpdated, TabID: 1})
	if got := len(s.events); got != 0 {
		t.Fatalf("expected event after shutdown to be dropped, got %d buffered", got)
	}

	// A late debounce timer can fire after the event channel is gone.
	close(s.events)
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("emit after channel close panicked: %v", r)
		}
	}()
	s.emit(ctx, Event{Kind: TabActivated, TabID: 1})
}

func TestInjectAttachesOutsideLock(t *testing.T) {
	s := setupTestSource(t)
	s.ids[target.ID("A")] = 1

	attaching := make(chan struct{})
	release := make(chan struct{})
	s.attach = func(src *Source, tabID int, tid target.ID) (*agent, error) {
		close(attaching)
		<-release
		return nil, errors.New("attach failed")
	}

	done := make(chan error, 1)
	go func() { done <- s.Inject(context.Background(), 1) }()
	<-attaching

	// A slow attach on one tab must not stall lookups for another.
	extracted := make(chan error, 1)
	go func() {
		_, err := s.Extract(context.Background(), 2)
		extracted <- err
	}()
	select {
	case err := <-extracted:
		if !errors.Is(err, ErrNoReceiver) {
			t.Fatalf("expected ErrNoReceiver, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("extract blocked while another tab was attaching")
	}

	close(release)
	if err := <-done; err == nil {
		t.Fatal("expected inject error when attach fails")
	}
}

func TestInjectDiscardsAgentForVanishedTab(t *testing.T) {
	s := setupTestSource(t)
	s.ids[target.ID("A")] = 1

	closed := false
	ag := &agent{cancel: func() { closed = true }}
	s.attach = func(src *Source, tabID int, tid target.ID) (*agent, error) {
		delete(src.ids, target.ID("A"))
		return ag, nil
	}

	if err := s.Inject(context.Background(), 1); err == nil {
		t.Fatal("expected inject error for vanished tab")
	}
	if !closed {
		t.Fatal("expected the orphaned agent to be closed")
	}
	if _, ok := s.agents[1]; ok {
		t.Fatal("agent installed for vanished tab")
	}
}
