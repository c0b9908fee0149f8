package session

import (
	"context"
	"errors"
	"mediabridge/internal/media"
	"mediabridge/internal/platform"
	"sync"
	"testing"
	"time"
)

const waitTimeout = 2 * time.Second

type fakeSource struct {
	mu           sync.Mutex
	order        []string
	players      map[string]*fakePlayer
	names        map[string]string
	hangNames    map[string]bool
	subscribeErr map[string]error
	subscribes   map[string]int
	listErr      error
	watch        chan platform.PlayerChange
	calls        []string
	onList       func()
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		players:      make(map[string]*fakePlayer),
		names:        make(map[string]string),
		hangNames:    make(map[string]bool),
		subscribeErr: make(map[string]error),
		subscribes:   make(map[string]int),
		watch:        make(chan platform.PlayerChange),
	}
}

func (s *fakeSource) addPlayer(raw string, name string) *fakePlayer {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := newFakePlayer()
	s.order = append(s.order, raw)
	s.players[raw] = p
	s.names[raw] = name
	return p
}

func (s *fakeSource) player(raw string) *fakePlayer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.players[raw]
}

func (s *fakeSource) setSubscribeErr(raw string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribeErr[raw] = err
}

func (s *fakeSource) subscribeCount(raw string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribes[raw]
}

func (s *fakeSource) callLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// ListPlayers runs onList after taking the listing, so a player it adds is
// missing from the result like one that appears mid-enumeration.
func (s *fakeSource) ListPlayers(context.Context) ([]string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, "list")
	if s.listErr != nil {
		s.mu.Unlock()
		return nil, s.listErr
	}
	players := append([]string(nil), s.order...)
	hook := s.onList
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return players, nil
}

func (s *fakeSource) WatchPlayers(context.Context) (<-chan platform.PlayerChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "watch")
	return s.watch, nil
}

func (s *fakeSource) DisplayName(ctx context.Context, identity string) (string, error) {
	s.mu.Lock()
	hang := s.hangNames[identity]
	name, ok := s.names[identity]
	s.mu.Unlock()

	if hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if !ok {
		return "", errors.New("no such player")
	}
	return name, nil
}

func (s *fakeSource) Subscribe(_ context.Context, identity string) (platform.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribes[identity]++
	if err := s.subscribeErr[identity]; err != nil {
		return nil, err
	}
	p, ok := s.players[identity]
	if !ok {
		return nil, errors.New("no such player")
	}
	return p, nil
}

func (s *fakeSource) Close() error {
	return nil
}

type fakePlayer struct {
	mu         sync.Mutex
	metadata   media.NativeMetadata
	status     string
	canSkip    bool
	position   int64
	volume     float64
	volumeSets []float64
	closed     int

	changes chan platform.Change
	nexts   chan struct{}
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{
		status:  "Playing",
		volume:  1,
		changes: make(chan platform.Change),
		nexts:   make(chan struct{}, 16),
	}
}

func (p *fakePlayer) Metadata(context.Context) (media.NativeMetadata, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metadata, nil
}

func (p *fakePlayer) PlaybackStatus(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, nil
}

func (p *fakePlayer) CanGoNext(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.canSkip, nil
}

func (p *fakePlayer) PositionMS(context.Context) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position, nil
}

func (p *fakePlayer) Volume(context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume, nil
}

func (p *fakePlayer) SetVolume(_ context.Context, volume float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
	p.volumeSets = append(p.volumeSets, volume)
	return nil
}

func (p *fakePlayer) Next(context.Context) error {
	p.nexts <- struct{}{}
	return nil
}

func (p *fakePlayer) Changes() <-chan platform.Change {
	return p.changes
}

func (p *fakePlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *fakePlayer) setPosition(positionMS int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = positionMS
}

// setLiveVolume changes the volume the way a user would, outside SetVolume.
func (p *fakePlayer) setLiveVolume(volume float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
}

func (p *fakePlayer) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePlayer) volumeHistory() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.volumeSets...)
}

func (p *fakePlayer) push(t *testing.T, change platform.Change) {
	t.Helper()
	select {
	case p.changes <- change:
	case <-time.After(waitTimeout):
		t.Fatalf("tracker did not take change %s", change.Kind)
	}
}

func (p *fakePlayer) waitNext(t *testing.T) {
	t.Helper()
	select {
	case <-p.nexts:
	case <-time.After(waitTimeout):
		t.Fatalf("expected a next-track call")
	}
}

type recordingSink struct {
	mu      sync.Mutex
	events  []Event
	allowed map[string]bool
	feed    chan Event
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		allowed: make(map[string]bool),
		feed:    make(chan Event, 256),
	}
}

func (s *recordingSink) record(event Event) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()

	select {
	case s.feed <- event:
	default:
	}
}

func (s *recordingSink) SessionsChanged(sessions []media.SessionInfo) {
	s.record(SessionsChanged(sessions))
}

func (s *recordingSink) MetadataChanged(identity string, metadata media.MetadataInfo) {
	s.record(MetadataChanged(identity, metadata))
}

func (s *recordingSink) PlaybackStateChanged(identity string, playback media.PlaybackInfo) {
	s.record(PlaybackStateChanged(identity, playback))
}

func (s *recordingSink) IPCCallback(command string, arg string) {
	s.record(IPCCallback(command, arg))
}

func (s *recordingSink) FilePicked(requestID string, uri string) {
	s.record(FilePicked(requestID, uri))
}

func (s *recordingSink) DarkModeChanged(dark bool) {
	s.record(DarkModeChanged(dark))
}

func (s *recordingSink) IsAppIDAllowed(_ context.Context, identity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allowed[identity]
}

func (s *recordingSink) count(kind EventKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, event := range s.events {
		if event.Kind == kind {
			n++
		}
	}
	return n
}

func (s *recordingSink) eventsOf(kind EventKind) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []Event
	for _, event := range s.events {
		if event.Kind == kind {
			events = append(events, event)
		}
	}
	return events
}

// waitEvent returns the next event matching match, failing the test after
// waitTimeout.
func (s *recordingSink) waitEvent(t *testing.T, match func(Event) bool) Event {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case event := <-s.feed:
			if match(event) {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event")
			return Event{}
		}
	}
}

type fakePicker struct {
	uri      string
	err      error
	requests chan platform.FileRequest
}

func (p *fakePicker) PickFile(_ context.Context, req platform.FileRequest) (string, error) {
	p.requests <- req
	return p.uri, p.err
}

type fakeTheme struct {
	changes chan bool
	err     error
}

func (t *fakeTheme) WatchDarkMode(context.Context) (<-chan bool, error) {
	if t.err != nil {
		return nil, t.err
	}
	return t.changes, nil
}

func waitUntil(t *testing.T, what string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting until %s", what)
}

func isKind(kind EventKind) func(Event) bool {
	return func(event Event) bool {
		return event.Kind == kind
	}
}
