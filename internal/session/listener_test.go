package session

import (
	"context"
	"errors"
	"mediabridge/internal/admission"
	"mediabridge/internal/media"
	"mediabridge/internal/notify"
	"mediabridge/internal/platform"
	"reflect"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	fooID = "org.mpris.MediaPlayer2.foo"
	barID = "org.mpris.MediaPlayer2.bar"
)

type harness struct {
	source   *fakeSource
	sink     *recordingSink
	allow    *admission.AllowList
	hub      Hub
	listener *Listener
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
}

func startListener(t *testing.T, source *fakeSource, allowed []string, options Options) *harness {
	t.Helper()
	return startListenerWith(t, source, allowed, options, nil)
}

// startListenerWith lets a test add producers such as a picker or a theme
// source to the hub before the listener starts.
func startListenerWith(t *testing.T, source *fakeSource, allowed []string, options Options, configure func(*Hub)) *harness {
	t.Helper()

	sink := newRecordingSink()
	allow := admission.NewAllowList(allowed)
	hub := Hub{
		Outbound: NewDispatcher(sink, 256),
		Commands: NewInlet(0),
		Filter:   allow,
	}
	if configure != nil {
		configure(&hub)
	}
	if options.IdentityTimeout == 0 {
		options.IdentityTimeout = 50 * time.Millisecond
	}

	h := &harness{
		source:   source,
		sink:     sink,
		allow:    allow,
		hub:      hub,
		listener: NewListener(source, hub, options),
		done:     make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.err = h.listener.Run(ctx)
		close(h.done)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(waitTimeout):
			t.Errorf("listener did not stop")
		}
	})

	waitUntil(t, "initial snapshot", func() bool {
		return sink.count(EventSessionsChanged) > 0
	})
	return h
}

func (h *harness) send(t *testing.T, cmd Command) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := h.hub.Commands.Send(ctx, cmd); err != nil {
		t.Fatalf("send %s: %v", cmd.Kind, err)
	}
}

func (h *harness) waitActive(t *testing.T, want ...string) {
	t.Helper()
	if want == nil {
		want = []string{}
	}
	waitUntil(t, "active trackers match", func() bool {
		return reflect.DeepEqual(h.listener.Registry().Active(), want)
	})
}

func (h *harness) waitState(t *testing.T, raw string, state TrackerState) {
	t.Helper()
	waitUntil(t, raw+" reaches "+state.String(), func() bool {
		return h.listener.Registry().States()[raw] == state
	})
}

func TestListenerTracksOnlyAllowedPlayers(t *testing.T) {
	source := newFakeSource()
	source.addPlayer(fooID, "Foo")
	source.addPlayer(barID, "Bar")

	h := startListener(t, source, []string{fooID}, Options{})

	h.waitActive(t, fooID)
	if got := source.subscribeCount(barID); got != 0 {
		t.Fatalf("expected no subscription for disallowed player, got %d", got)
	}

	snapshot := h.listener.Registry().Snapshot()
	want := []media.SessionInfo{
		{Identity: barID, DisplayName: "Bar"},
		{Identity: fooID, DisplayName: "Foo"},
	}
	if !reflect.DeepEqual(snapshot, want) {
		t.Fatalf("expected snapshot of every known player, got %+v", snapshot)
	}
}

func TestInitialEventsUseNormalizedValues(t *testing.T) {
	source := newFakeSource()
	player := source.addPlayer(fooID, "Foo")
	player.metadata = media.NativeMetadata{
		Title:     "Song",
		Artists:   []string{"First", "Second"},
		Length:    3 * time.Minute,
		HasLength: true,
		ArtURL:    "https://example.com/art.png",
	}
	player.canSkip = true
	player.position = 1500

	h := startListener(t, source, []string{fooID}, Options{})

	metadata := h.sink.waitEvent(t, isKind(EventMetadataChanged))
	if metadata.Identity != fooID || metadata.Metadata.Artist != "First" || metadata.Metadata.DurationMS != 180000 {
		t.Fatalf("unexpected metadata event: %+v", metadata)
	}

	playback := h.sink.waitEvent(t, isKind(EventPlaybackStateChanged))
	want := media.PlaybackInfo{State: media.StatePlaying, PositionMS: 1500, CanSkip: true}
	if playback.Playback != want {
		t.Fatalf("expected %+v, got %+v", want, playback.Playback)
	}
}

func TestRefreshAppliesReplacedAllowList(t *testing.T) {
	source := newFakeSource()
	foo := source.addPlayer(fooID, "Foo")
	source.addPlayer(barID, "Bar")

	h := startListener(t, source, []string{fooID}, Options{})
	h.waitActive(t, fooID)

	h.allow.Replace([]string{barID})
	h.send(t, Command{Kind: CommandRefreshSessions})

	h.waitActive(t, barID)
	if foo.closeCount() != 1 {
		t.Fatalf("expected foo subscription closed once, got %d", foo.closeCount())
	}
}

func TestRefreshIsIdempotent(t *testing.T) {
	source := newFakeSource()
	source.addPlayer(fooID, "Foo")

	h := startListener(t, source, []string{fooID}, Options{})
	h.waitState(t, fooID, TrackerActive)

	for i := 0; i < 3; i++ {
		h.listener.Registry().Refresh(context.Background())
	}

	if got := source.subscribeCount(fooID); got != 1 {
		t.Fatalf("expected one subscription, got %d", got)
	}
}

func TestPlayerAddedAndRemoved(t *testing.T) {
	source := newFakeSource()
	h := startListener(t, source, []string{fooID}, Options{})

	player := source.addPlayer(fooID, "Foo")
	source.watch <- platform.PlayerChange{Identity: fooID, Added: true}

	event := h.sink.waitEvent(t, func(event Event) bool {
		return event.Kind == EventSessionsChanged && len(event.Sessions) > 0
	})
	if len(event.Sessions) != 1 || event.Sessions[0].DisplayName != "Foo" {
		t.Fatalf("unexpected snapshot after add: %+v", event.Sessions)
	}
	h.waitActive(t, fooID)

	source.watch <- platform.PlayerChange{Identity: fooID, Added: false}

	event = h.sink.waitEvent(t, isKind(EventSessionsChanged))
	if len(event.Sessions) != 0 {
		t.Fatalf("expected empty snapshot after removal, got %+v", event.Sessions)
	}
	h.waitActive(t)
	if player.closeCount() != 1 {
		t.Fatalf("expected subscription closed, got %d", player.closeCount())
	}
}

func TestDisplayNameTimeoutFallsBackToEmpty(t *testing.T) {
	source := newFakeSource()
	source.addPlayer(fooID, "Foo")
	source.hangNames[fooID] = true

	start := time.Now()
	h := startListener(t, source, []string{fooID}, Options{IdentityTimeout: 20 * time.Millisecond})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("startup blocked on display name for %s", elapsed)
	}

	snapshot := h.listener.Registry().Snapshot()
	if len(snapshot) != 1 || snapshot[0].DisplayName != "" {
		t.Fatalf("expected player with empty name, got %+v", snapshot)
	}
	h.waitActive(t, fooID)
}

func TestSkipWithoutTrackerIsDropped(t *testing.T) {
	source := newFakeSource()
	source.addPlayer(fooID, "Foo")

	h := startListener(t, source, nil, Options{})

	if delivered := h.listener.Registry().Route(context.Background(), Command{Kind: CommandSkip, Identity: fooID}); delivered != 0 {
		t.Fatalf("expected command to be dropped, delivered to %d", delivered)
	}

	h.send(t, Command{Kind: CommandSkip, Identity: "org.mpris.MediaPlayer2.missing"})
	h.send(t, Command{Kind: CommandRefreshSessions})
	h.waitActive(t)
}

func TestSkipCallsNext(t *testing.T) {
	source := newFakeSource()
	player := source.addPlayer(fooID, "Foo")

	h := startListener(t, source, []string{fooID}, Options{})
	h.waitState(t, fooID, TrackerActive)

	h.send(t, Command{Kind: CommandSkip, Identity: fooID})
	player.waitNext(t)
}

func TestMuteUnmuteRestoresLiveVolume(t *testing.T) {
	source := newFakeSource()
	player := source.addPlayer(fooID, "Foo")
	player.volume = 0.7

	h := startListener(t, source, []string{fooID}, Options{})
	h.waitState(t, fooID, TrackerActive)

	h.send(t, Command{Kind: CommandMute, Identity: fooID})
	h.send(t, Command{Kind: CommandMute, Identity: fooID})
	h.send(t, Command{Kind: CommandUnmute, Identity: fooID})
	h.send(t, Command{Kind: CommandUnmute, Identity: fooID})
	h.send(t, Command{Kind: CommandSkip, Identity: fooID})
	player.waitNext(t)

	if got := player.volumeHistory(); !reflect.DeepEqual(got, []float64{0, 0.7}) {
		t.Fatalf("expected volume set to 0 then restored to 0.7, got %v", got)
	}
}

func TestStatusChangeUsesCachedCanSkip(t *testing.T) {
	source := newFakeSource()
	player := source.addPlayer(fooID, "Foo")
	player.canSkip = true

	h := startListener(t, source, []string{fooID}, Options{})
	h.waitState(t, fooID, TrackerActive)
	h.sink.waitEvent(t, isKind(EventPlaybackStateChanged))

	player.push(t, platform.Change{Kind: platform.ChangePlaybackStatus, Status: "Paused"})
	event := h.sink.waitEvent(t, func(event Event) bool {
		return event.Kind == EventPlaybackStateChanged && event.Playback.State == media.StatePaused
	})
	if !event.Playback.CanSkip {
		t.Fatalf("expected paused with cached can-skip, got %+v", event.Playback)
	}

	player.push(t, platform.Change{Kind: platform.ChangeCanSkip, CanSkip: false})
	event = h.sink.waitEvent(t, func(event Event) bool {
		return event.Kind == EventPlaybackStateChanged && !event.Playback.CanSkip
	})
	if event.Playback.State != media.StatePaused {
		t.Fatalf("expected paused without skip, got %+v", event.Playback)
	}
}

func TestUnreadableChangeIsSkipped(t *testing.T) {
	source := newFakeSource()
	player := source.addPlayer(fooID, "Foo")

	h := startListener(t, source, []string{fooID}, Options{})
	h.waitState(t, fooID, TrackerActive)

	player.push(t, platform.Change{Kind: platform.ChangeMetadata, Err: errors.New("read failed")})
	player.push(t, platform.Change{Kind: platform.ChangePlaybackStatus, Status: "Stopped"})

	h.sink.waitEvent(t, func(event Event) bool {
		return event.Kind == EventPlaybackStateChanged && event.Playback.State == media.StateStopped
	})
	if state := h.listener.Registry().States()[fooID]; state != TrackerActive {
		t.Fatalf("expected tracker to stay active, got %s", state)
	}
}

func TestLateDurationIsMergedAndReemitted(t *testing.T) {
	source := newFakeSource()
	player := source.addPlayer(fooID, "Foo")
	player.metadata = media.NativeMetadata{Title: "Song"}

	h := startListener(t, source, []string{fooID}, Options{})
	first := h.sink.waitEvent(t, isKind(EventMetadataChanged))
	if first.Metadata.DurationMS != media.UnknownDuration {
		t.Fatalf("expected unknown duration, got %d", first.Metadata.DurationMS)
	}
	h.waitState(t, fooID, TrackerActive)

	player.push(t, platform.Change{Kind: platform.ChangeTimeline, DurationMS: 200000, PositionMS: media.UnknownPosition})
	reemitted := h.sink.waitEvent(t, isKind(EventMetadataChanged))
	if reemitted.Metadata.DurationMS != 200000 || reemitted.Metadata.Title != "Song" {
		t.Fatalf("expected re-emitted metadata with duration, got %+v", reemitted.Metadata)
	}

	// Same duration again must not re-emit; the status change is a marker.
	player.push(t, platform.Change{Kind: platform.ChangeTimeline, DurationMS: 200000, PositionMS: media.UnknownPosition})
	player.push(t, platform.Change{Kind: platform.ChangePlaybackStatus, Status: "Paused"})
	marker := h.sink.waitEvent(t, func(event Event) bool {
		return event.Kind == EventMetadataChanged || event.Kind == EventPlaybackStateChanged && event.Playback.State == media.StatePaused
	})
	if marker.Kind == EventMetadataChanged {
		t.Fatalf("unchanged duration re-emitted metadata: %+v", marker.Metadata)
	}

	player.push(t, platform.Change{Kind: platform.ChangeMetadata, Metadata: media.NativeMetadata{Title: "Song"}})
	merged := h.sink.waitEvent(t, isKind(EventMetadataChanged))
	if merged.Metadata.DurationMS != 200000 {
		t.Fatalf("expected cached duration merged, got %d", merged.Metadata.DurationMS)
	}
}

func TestSeekBurstCollapsesToOneEvent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := newFakeSource()
	player := source.addPlayer(fooID, "Foo")

	h := startListener(t, source, []string{fooID}, Options{Clock: clock, SeekDebounce: time.Second})
	h.sink.waitEvent(t, isKind(EventPlaybackStateChanged))
	h.waitState(t, fooID, TrackerActive)

	for i := 1; i <= 10; i++ {
		player.push(t, platform.Change{Kind: platform.ChangeSeeked, PositionMS: int64(i) * 1000})
	}
	h.send(t, Command{Kind: CommandSkip, Identity: fooID})
	player.waitNext(t)

	clock.Advance(time.Second)
	seek := h.sink.waitEvent(t, isKind(EventPlaybackStateChanged))
	if seek.Playback.PositionMS != 10000 {
		t.Fatalf("expected one event at 10000ms, got %+v", seek.Playback)
	}

	player.push(t, platform.Change{Kind: platform.ChangePlaybackStatus, Status: "Paused"})
	next := h.sink.waitEvent(t, isKind(EventPlaybackStateChanged))
	if next.Playback.State != media.StatePaused {
		t.Fatalf("expected no further seek events, got %+v", next.Playback)
	}
}

func TestInstancesShareLogicalIdentity(t *testing.T) {
	const (
		first   = "org.mpris.MediaPlayer2.chromium.instance100"
		second  = "org.mpris.MediaPlayer2.chromium.instance200"
		logical = "org.mpris.MediaPlayer2.chromium.instancen"
	)
	source := newFakeSource()
	one := source.addPlayer(first, "Chromium")
	two := source.addPlayer(second, "Chromium")

	h := startListener(t, source, []string{logical}, Options{})
	h.waitActive(t, first, second)

	snapshot := h.listener.Registry().Snapshot()
	if len(snapshot) != 1 || snapshot[0].Identity != logical {
		t.Fatalf("expected one logical session, got %+v", snapshot)
	}

	delivered := h.listener.Registry().Route(context.Background(), Command{Kind: CommandSkip, Identity: logical})
	if delivered != 2 {
		t.Fatalf("expected skip delivered to both instances, got %d", delivered)
	}
	one.waitNext(t)
	two.waitNext(t)
}

func TestSubscriptionFailureIsRetriedOnRefresh(t *testing.T) {
	source := newFakeSource()
	source.addPlayer(fooID, "Foo")
	source.setSubscribeErr(fooID, errors.New("bus busy"))

	h := startListener(t, source, []string{fooID}, Options{})
	waitUntil(t, "subscription attempted", func() bool {
		return source.subscribeCount(fooID) == 1 && len(h.listener.Registry().Active()) == 0
	})

	source.setSubscribeErr(fooID, nil)
	h.send(t, Command{Kind: CommandRefreshSessions})
	h.waitActive(t, fooID)
}

func TestPlayerStreamCloseEndsTracker(t *testing.T) {
	source := newFakeSource()
	player := source.addPlayer(fooID, "Foo")

	h := startListener(t, source, []string{fooID}, Options{})
	h.waitState(t, fooID, TrackerActive)

	close(player.changes)
	h.waitActive(t)
	if state := h.listener.Registry().States()[fooID]; state != TrackerStopped {
		t.Fatalf("expected stopped tracker, got %s", state)
	}
}

func TestAlbumArtToggle(t *testing.T) {
	source := newFakeSource()
	player := source.addPlayer(fooID, "Foo")
	player.metadata = media.NativeMetadata{Title: "Song", ArtURL: "https://example.com/a.png"}

	h := startListener(t, source, []string{fooID}, Options{})
	first := h.sink.waitEvent(t, isKind(EventMetadataChanged))
	if first.Metadata.ArtURL == "" {
		t.Fatalf("expected art url while album art is on")
	}
	h.waitState(t, fooID, TrackerActive)

	h.send(t, Command{Kind: CommandSetAlbumArt, Enabled: false})
	waitUntil(t, "album art disabled", func() bool { return !h.listener.AlbumArt() })

	player.push(t, platform.Change{Kind: platform.ChangeMetadata, Metadata: player.metadata})
	next := h.sink.waitEvent(t, isKind(EventMetadataChanged))
	if next.Metadata.ArtURL != "" {
		t.Fatalf("expected art url dropped, got %q", next.Metadata.ArtURL)
	}
}

func TestNotifyCommandUsesNotifier(t *testing.T) {
	source := newFakeSource()
	sink := newRecordingSink()
	notified := make(chan string, 1)
	hub := Hub{
		Outbound: NewDispatcher(sink, 0),
		Commands: NewInlet(0),
		Filter:   admission.NewAllowList(nil),
		Notifier: notify.Func(func(title string, body string) error {
			notified <- title + "|" + body
			return nil
		}),
	}
	listener := NewListener(source, hub, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx) }()

	if err := hub.Commands.Send(ctx, Command{Kind: CommandNotify, Title: "Now playing", Body: "Song"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case got := <-notified:
		if got != "Now playing|Song" {
			t.Fatalf("unexpected notification %q", got)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("notifier not called")
	}

	if err := hub.Commands.Send(ctx, Command{Kind: CommandShutdown}); err != nil {
		t.Fatalf("send shutdown: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("listener did not stop")
	}
}

func TestShutdownStopsTrackersAndInlet(t *testing.T) {
	source := newFakeSource()
	player := source.addPlayer(fooID, "Foo")

	h := startListener(t, source, []string{fooID}, Options{})
	h.waitState(t, fooID, TrackerActive)

	h.send(t, Command{Kind: CommandShutdown})
	select {
	case <-h.done:
	case <-time.After(waitTimeout):
		t.Fatalf("listener did not stop")
	}
	if h.err != nil {
		t.Fatalf("expected clean shutdown, got %v", h.err)
	}
	if player.closeCount() != 1 {
		t.Fatalf("expected subscription closed, got %d", player.closeCount())
	}
	if active := h.listener.Registry().Active(); len(active) != 0 {
		t.Fatalf("expected no trackers after shutdown, got %v", active)
	}

	err := h.hub.Commands.Send(context.Background(), Command{Kind: CommandRefreshSessions})
	if !errors.Is(err, ErrShutdown) {
		t.Fatalf("expected ErrShutdown, got %v", err)
	}
}

func TestListPlayersFailureIsFatal(t *testing.T) {
	source := newFakeSource()
	source.listErr = errors.New("no session bus")

	listener := NewListener(source, Hub{Filter: admission.NewAllowList(nil)}, Options{})
	err := listener.Run(context.Background())
	if err == nil || !errors.Is(err, source.listErr) {
		t.Fatalf("expected enumeration error, got %v", err)
	}
}

func TestStatusChangeCancelsPendingSeek(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := newFakeSource()
	player := source.addPlayer(fooID, "Foo")

	h := startListener(t, source, []string{fooID}, Options{Clock: clock, SeekDebounce: time.Second})
	h.sink.waitEvent(t, isKind(EventPlaybackStateChanged))
	h.waitState(t, fooID, TrackerActive)

	player.push(t, platform.Change{Kind: platform.ChangeSeeked, PositionMS: 5000})
	player.setPosition(9000)
	player.push(t, platform.Change{Kind: platform.ChangePlaybackStatus, Status: "Paused"})
	paused := h.sink.waitEvent(t, func(event Event) bool {
		return event.Kind == EventPlaybackStateChanged && event.Playback.State == media.StatePaused
	})
	if paused.Playback.PositionMS != 9000 {
		t.Fatalf("expected the live position 9000, got %+v", paused.Playback)
	}

	clock.Advance(time.Second)
	player.push(t, platform.Change{Kind: platform.ChangeCanSkip, CanSkip: true})
	h.sink.waitEvent(t, func(event Event) bool {
		return event.Kind == EventPlaybackStateChanged && event.Playback.CanSkip
	})

	for _, event := range h.sink.eventsOf(EventPlaybackStateChanged) {
		if event.Playback.PositionMS == 5000 {
			t.Fatalf("stale seek position reported after a fresher read: %+v", event.Playback)
		}
	}
}

func TestSecondMuteSilencesRaisedVolume(t *testing.T) {
	source := newFakeSource()
	player := source.addPlayer(fooID, "Foo")
	player.volume = 0.7

	h := startListener(t, source, []string{fooID}, Options{})
	h.waitState(t, fooID, TrackerActive)

	h.send(t, Command{Kind: CommandMute, Identity: fooID})
	waitUntil(t, "first mute applied", func() bool {
		return len(player.volumeHistory()) == 1
	})

	player.setLiveVolume(0.4)
	h.send(t, Command{Kind: CommandMute, Identity: fooID})
	h.send(t, Command{Kind: CommandUnmute, Identity: fooID})
	h.send(t, Command{Kind: CommandSkip, Identity: fooID})
	player.waitNext(t)

	if got := player.volumeHistory(); !reflect.DeepEqual(got, []float64{0, 0, 0.7}) {
		t.Fatalf("expected silenced twice then restored to the first capture, got %v", got)
	}
}

func TestPlayerAppearingDuringEnumerationIsTracked(t *testing.T) {
	source := newFakeSource()
	source.addPlayer(fooID, "Foo")
	source.watch = make(chan platform.PlayerChange, 1)
	source.onList = func() {
		source.addPlayer(barID, "Bar")
		source.watch <- platform.PlayerChange{Identity: barID, Added: true}
	}

	h := startListener(t, source, []string{fooID, barID}, Options{})
	h.waitActive(t, barID, fooID)

	calls := source.callLog()
	if len(calls) < 2 || calls[0] != "watch" || calls[1] != "list" {
		t.Fatalf("expected the watch registered before listing, got %v", calls)
	}
}

func TestLaunchFilePickerAnswersWithURI(t *testing.T) {
	source := newFakeSource()
	picker := &fakePicker{uri: "file:///home/user/scrobbles.csv", requests: make(chan platform.FileRequest, 1)}
	h := startListenerWith(t, source, nil, Options{}, func(hub *Hub) {
		hub.Picker = picker
	})

	req := platform.FileRequest{Save: true, Title: "Export", FileName: "scrobbles.csv", Filters: []string{"*.csv"}}
	h.send(t, Command{Kind: CommandLaunchFilePicker, RequestID: "7", File: req})

	picked := h.sink.waitEvent(t, isKind(EventFilePicked))
	if picked.RequestID != "7" || picked.URI != picker.uri {
		t.Fatalf("unexpected picker answer: %+v", picked)
	}
	select {
	case got := <-picker.requests:
		if !reflect.DeepEqual(got, req) {
			t.Fatalf("expected request %+v, got %+v", req, got)
		}
	default:
		t.Fatalf("picker was not asked")
	}
}

func TestLaunchFilePickerFailureAnswersEmpty(t *testing.T) {
	source := newFakeSource()
	picker := &fakePicker{err: errors.New("portal gone"), requests: make(chan platform.FileRequest, 1)}
	h := startListenerWith(t, source, nil, Options{}, func(hub *Hub) {
		hub.Picker = picker
	})

	h.send(t, Command{Kind: CommandLaunchFilePicker, RequestID: "8"})
	picked := h.sink.waitEvent(t, isKind(EventFilePicked))
	if picked.RequestID != "8" || picked.URI != "" {
		t.Fatalf("expected an empty answer, got %+v", picked)
	}
}

func TestLaunchFilePickerWithoutPickerAnswersEmpty(t *testing.T) {
	h := startListener(t, newFakeSource(), nil, Options{})

	h.send(t, Command{Kind: CommandLaunchFilePicker, RequestID: "9"})
	picked := h.sink.waitEvent(t, isKind(EventFilePicked))
	if picked.RequestID != "9" || picked.URI != "" {
		t.Fatalf("expected an empty answer, got %+v", picked)
	}
}

func TestDarkModeChangesAreForwarded(t *testing.T) {
	theme := &fakeTheme{changes: make(chan bool, 2)}
	theme.changes <- true
	theme.changes <- false

	h := startListenerWith(t, newFakeSource(), nil, Options{}, func(hub *Hub) {
		hub.Theme = theme
	})

	first := h.sink.waitEvent(t, isKind(EventDarkModeChanged))
	second := h.sink.waitEvent(t, isKind(EventDarkModeChanged))
	if !first.Dark || second.Dark {
		t.Fatalf("expected dark then light, got %v then %v", first.Dark, second.Dark)
	}
}

func TestThemeUnavailableKeepsTracking(t *testing.T) {
	source := newFakeSource()
	source.addPlayer(fooID, "Foo")
	theme := &fakeTheme{err: errors.New("no settings portal")}

	h := startListenerWith(t, source, []string{fooID}, Options{}, func(hub *Hub) {
		hub.Theme = theme
	})
	h.waitActive(t, fooID)

	if got := h.sink.count(EventDarkModeChanged); got != 0 {
		t.Fatalf("expected no theme events, got %d", got)
	}
}
