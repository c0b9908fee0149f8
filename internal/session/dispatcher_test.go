package session

import (
	"context"
	"errors"
	"mediabridge/internal/admission"
	"mediabridge/internal/media"
	"testing"
	"time"
)

func TestDispatcherDropsWhenFull(t *testing.T) {
	dispatcher := NewDispatcher(newRecordingSink(), 1)

	if !dispatcher.Emit(SessionsChanged(nil)) {
		t.Fatalf("expected first event to be queued")
	}
	if dispatcher.Emit(MetadataChanged(fooID, media.MetadataInfo{})) {
		t.Fatalf("expected second event to be dropped")
	}
	if dispatcher.Dropped() != 1 {
		t.Fatalf("expected one dropped event, got %d", dispatcher.Dropped())
	}
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	sink := newRecordingSink()
	dispatcher := NewDispatcher(sink, 0)

	dispatcher.Emit(SessionsChanged([]media.SessionInfo{{Identity: fooID}}))
	dispatcher.Emit(MetadataChanged(fooID, media.MetadataInfo{Title: "Song"}))
	dispatcher.Emit(PlaybackStateChanged(fooID, media.PlaybackInfo{State: media.StatePlaying}))
	dispatcher.Emit(IPCCallback("openSettings", ""))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dispatcher.Run(ctx)

	want := []EventKind{EventSessionsChanged, EventMetadataChanged, EventPlaybackStateChanged, EventIPCCallback}
	for _, kind := range want {
		event := sink.waitEvent(t, func(Event) bool { return true })
		if event.Kind != kind {
			t.Fatalf("expected %s, got %s", kind, event.Kind)
		}
	}
}

func TestDispatcherAnswersAllowedQueries(t *testing.T) {
	sink := newRecordingSink()
	sink.allowed[fooID] = true
	dispatcher := NewDispatcher(sink, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dispatcher.Run(ctx)

	filter := admission.NewHostQuery(dispatcher, time.Second)
	if !filter.Allowed(ctx, fooID) {
		t.Fatalf("expected %s allowed", fooID)
	}
	if filter.Allowed(ctx, barID) {
		t.Fatalf("expected %s denied", barID)
	}
}

func TestAllowedQueryWithoutConsumerTimesOut(t *testing.T) {
	dispatcher := NewDispatcher(newRecordingSink(), 0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	allowed, err := dispatcher.QueryAllowed(ctx, fooID)
	if allowed || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error and denial, got %v / %v", allowed, err)
	}
	if admission.NewHostQuery(dispatcher, 20*time.Millisecond).Allowed(context.Background(), fooID) {
		t.Fatalf("expected host query to deny without a consumer")
	}
}

func TestInletTrySendWhenFull(t *testing.T) {
	inlet := NewInlet(1)

	if !inlet.TrySend(Command{Kind: CommandRefreshSessions}) {
		t.Fatalf("expected first command queued")
	}
	if inlet.TrySend(Command{Kind: CommandRefreshSessions}) {
		t.Fatalf("expected full inlet to refuse")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := inlet.Send(ctx, Command{Kind: CommandSkip}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected blocked send to time out, got %v", err)
	}

	inlet.close()
	if err := inlet.Send(context.Background(), Command{Kind: CommandSkip}); !errors.Is(err, ErrShutdown) {
		t.Fatalf("expected ErrShutdown, got %v", err)
	}
}
