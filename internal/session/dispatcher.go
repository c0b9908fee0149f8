package session

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

const DefaultOutboundQueue = 64

// Dispatcher carries events from every tracker to the Sink. Producers never
// block: when the queue is full the event is dropped.
type Dispatcher struct {
	sink    Sink
	queue   chan Event
	dropped atomic.Uint64
}

func NewDispatcher(sink Sink, size int) *Dispatcher {
	if size <= 0 {
		size = DefaultOutboundQueue
	}
	return &Dispatcher{sink: sink, queue: make(chan Event, size)}
}

func (d *Dispatcher) Emit(event Event) bool {
	select {
	case d.queue <- event:
		return true
	default:
		d.dropped.Add(1)
		log.Debug().Str("event", event.Kind.String()).Str("player", event.Identity).Msg("session: outbound queue full, dropping event")
		return false
	}
}

// Dropped reports how many events Emit has discarded.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// QueryAllowed asks the sink whether identity is allowed. The question is
// answered on the consumer goroutine like any other boundary call.
func (d *Dispatcher) QueryAllowed(ctx context.Context, identity string) (bool, error) {
	reply := make(chan bool, 1)
	event := Event{Kind: eventAllowedQuery, Identity: identity, reply: reply}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		return false, ctx.Err()
	}

	select {
	case allowed := <-reply:
		return allowed, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Run delivers queued events in order until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.queue:
			d.deliver(ctx, event)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event Event) {
	if d.sink == nil {
		if event.reply != nil {
			event.reply <- false
		}
		return
	}

	switch event.Kind {
	case EventSessionsChanged:
		d.sink.SessionsChanged(event.Sessions)
	case EventMetadataChanged:
		d.sink.MetadataChanged(event.Identity, event.Metadata)
	case EventPlaybackStateChanged:
		d.sink.PlaybackStateChanged(event.Identity, event.Playback)
	case EventIPCCallback:
		d.sink.IPCCallback(event.Command, event.Arg)
	case EventFilePicked:
		d.sink.FilePicked(event.RequestID, event.URI)
	case EventDarkModeChanged:
		d.sink.DarkModeChanged(event.Dark)
	case eventAllowedQuery:
		event.reply <- d.sink.IsAppIDAllowed(ctx, event.Identity)
	}
}
