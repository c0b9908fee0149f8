package session

import (
	"context"
	"mediabridge/internal/media"
	"mediabridge/internal/platform"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type TrackerState int32

const (
	TrackerStarting TrackerState = iota
	TrackerActive
	TrackerStopping
	TrackerStopped
)

func (s TrackerState) String() string {
	switch s {
	case TrackerStarting:
		return "starting"
	case TrackerActive:
		return "active"
	case TrackerStopping:
		return "stopping"
	case TrackerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// tracker owns one player subscription. Everything below the channel fields
// is touched only by the run goroutine.
type tracker struct {
	raw        string
	identity   string
	generation string

	source   platform.Source
	out      *Dispatcher
	clock    clockwork.Clock
	options  Options
	albumArt *atomic.Bool

	inbox  chan Command
	done   chan struct{}
	cancel context.CancelFunc
	state  atomic.Int32

	player      platform.Player
	metadata    *media.MetadataInfo
	playback    *media.PlaybackInfo
	status      string
	canSkip     bool
	muted       bool
	savedVolume float64

	seekTimer    clockwork.Timer
	seekPending  bool
	seekPosition int64
}

func newTracker(raw string, source platform.Source, out *Dispatcher, options Options, albumArt *atomic.Bool) *tracker {
	return &tracker{
		raw:        raw,
		identity:   media.NormalizeIdentity(raw),
		generation: uuid.NewString(),
		source:     source,
		out:        out,
		clock:      options.Clock,
		options:    options,
		albumArt:   albumArt,
		inbox:      make(chan Command, options.TrackerInbox),
		done:       make(chan struct{}),
	}
}

func (t *tracker) start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	t.cancel = cancel
	go t.run(ctx)
}

// stop cancels the tracker and waits for it to release the subscription.
func (t *tracker) stop() {
	t.setState(TrackerStopping)
	t.cancel()
	<-t.done
}

func (t *tracker) exited() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *tracker) State() TrackerState {
	return TrackerState(t.state.Load())
}

func (t *tracker) setState(state TrackerState) {
	for {
		current := t.state.Load()
		if current >= int32(state) {
			return
		}
		if t.state.CompareAndSwap(current, int32(state)) {
			return
		}
	}
}

// deliver hands a command to the tracker. It reports false when the tracker
// is gone or ctx ends first.
func (t *tracker) deliver(ctx context.Context, cmd Command) bool {
	select {
	case t.inbox <- cmd:
		return true
	case <-t.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (t *tracker) run(ctx context.Context) {
	defer close(t.done)
	defer t.state.Store(int32(TrackerStopped))

	setupCtx, cancel := context.WithTimeout(ctx, t.options.CallTimeout)
	player, err := t.source.Subscribe(setupCtx, t.raw)
	cancel()
	if err != nil {
		log.Warn().Err(err).Str("player", t.raw).Msg("session: subscription failed, player left untracked")
		return
	}
	t.player = player
	defer func() {
		if t.seekTimer != nil {
			t.seekTimer.Stop()
		}
		if err := player.Close(); err != nil {
			log.Debug().Err(err).Str("player", t.raw).Msg("session: closing subscription failed")
		}
	}()

	log.Debug().Str("player", t.raw).Str("generation", t.generation).Msg("session: tracker starting")
	t.emitInitial(ctx)
	t.setState(TrackerActive)

	changes := player.Changes()
	for {
		var seekFired <-chan time.Time
		if t.seekPending {
			seekFired = t.seekTimer.Chan()
		}

		select {
		case <-ctx.Done():
			t.setState(TrackerStopping)
			return
		case change, ok := <-changes:
			if !ok {
				log.Debug().Str("player", t.raw).Msg("session: player stream closed")
				t.setState(TrackerStopping)
				return
			}
			t.handleChange(ctx, change)
		case <-seekFired:
			t.flushSeek()
		case cmd := <-t.inbox:
			t.handleCommand(ctx, cmd)
		}
	}
}

func (t *tracker) emitInitial(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, t.options.CallTimeout)
	defer cancel()

	if native, err := t.player.Metadata(callCtx); err != nil {
		log.Debug().Err(err).Str("player", t.raw).Msg("session: initial metadata read failed")
	} else {
		t.emitMetadata(native)
	}

	if status, err := t.player.PlaybackStatus(callCtx); err != nil {
		log.Debug().Err(err).Str("player", t.raw).Msg("session: initial playback status read failed")
	} else {
		t.status = status
	}
	if canSkip, err := t.player.CanGoNext(callCtx); err != nil {
		log.Debug().Err(err).Str("player", t.raw).Msg("session: initial can-skip read failed")
	} else {
		t.canSkip = canSkip
	}
	t.emitPlayback(ctx)
}

func (t *tracker) handleChange(ctx context.Context, change platform.Change) {
	if change.Err != nil {
		log.Debug().Err(change.Err).Str("player", t.raw).Str("change", change.Kind.String()).Msg("session: skipping unreadable update")
		return
	}

	switch change.Kind {
	case platform.ChangeMetadata:
		t.emitMetadata(change.Metadata)
	case platform.ChangePlaybackStatus:
		t.status = change.Status
		t.emitPlayback(ctx)
	case platform.ChangeCanSkip:
		t.canSkip = change.CanSkip
		t.emitPlayback(ctx)
	case platform.ChangeSeeked:
		t.scheduleSeek(change.PositionMS)
	case platform.ChangeTimeline:
		t.applyTimeline(change)
	}
}

func (t *tracker) normalizeOptions() media.NormalizeOptions {
	return media.NormalizeOptions{
		ArtURLLimit: t.options.ArtURLLimit,
		AlbumArt:    t.albumArt == nil || t.albumArt.Load(),
	}
}

func (t *tracker) emitMetadata(native media.NativeMetadata) {
	info := media.MergeDuration(media.NormalizeMetadata(native, t.normalizeOptions()), t.metadata)
	t.metadata = &info
	t.out.Emit(MetadataChanged(t.identity, info))
}

// emitPlayback re-reads the position because players do not always push it.
func (t *tracker) emitPlayback(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, t.options.CallTimeout)
	position, err := t.player.PositionMS(callCtx)
	cancel()
	if err != nil {
		log.Debug().Err(err).Str("player", t.raw).Msg("session: position read failed")
		position = media.UnknownPosition
	} else {
		t.cancelSeek()
	}

	info := media.MergePosition(media.NormalizePlayback(t.status, t.canSkip, position), t.playback)
	t.playback = &info
	t.out.Emit(PlaybackStateChanged(t.identity, info))
}

func (t *tracker) applyTimeline(change platform.Change) {
	if updated, changed := media.ApplyTimeline(t.metadata, change.DurationMS); changed {
		t.metadata = &updated
		t.out.Emit(MetadataChanged(t.identity, updated))
	}

	if change.PositionMS < 0 {
		return
	}
	t.cancelSeek()
	if t.playback != nil && t.playback.PositionMS != change.PositionMS {
		updated := *t.playback
		updated.PositionMS = change.PositionMS
		t.playback = &updated
		t.out.Emit(PlaybackStateChanged(t.identity, updated))
	}
}

// scheduleSeek restarts the idle window; only the last position of a burst
// is emitted.
func (t *tracker) scheduleSeek(positionMS int64) {
	t.seekPosition = positionMS
	if t.seekTimer == nil {
		t.seekTimer = t.clock.NewTimer(t.options.SeekDebounce)
	} else {
		t.cancelSeek()
		t.seekTimer.Reset(t.options.SeekDebounce)
	}
	t.seekPending = true
}

// cancelSeek drops a pending seek once a fresher position has been read.
func (t *tracker) cancelSeek() {
	if !t.seekPending {
		return
	}
	if !t.seekTimer.Stop() {
		select {
		case <-t.seekTimer.Chan():
		default:
		}
	}
	t.seekPending = false
}

func (t *tracker) flushSeek() {
	t.seekPending = false
	info := media.NormalizePlayback(t.status, t.canSkip, t.seekPosition)
	t.playback = &info
	t.out.Emit(PlaybackStateChanged(t.identity, info))
}

func (t *tracker) handleCommand(ctx context.Context, cmd Command) {
	callCtx, cancel := context.WithTimeout(ctx, t.options.CallTimeout)
	defer cancel()

	switch cmd.Kind {
	case CommandSkip:
		if err := t.player.Next(callCtx); err != nil {
			log.Warn().Err(err).Str("player", t.raw).Msg("session: skip failed")
		}
	case CommandMute:
		t.mute(callCtx)
	case CommandUnmute:
		t.unmute(callCtx)
	default:
		log.Debug().Str("player", t.raw).Str("command", cmd.Kind.String()).Msg("session: ignoring command")
	}
}

// mute captures the live volume right before silencing. A second mute keeps
// the first capture and only silences the player again if its volume was
// raised in the meantime.
func (t *tracker) mute(ctx context.Context) {
	volume, err := t.player.Volume(ctx)
	if err != nil {
		log.Warn().Err(err).Str("player", t.raw).Msg("session: volume read failed, not muting")
		return
	}
	if t.muted {
		if volume > 0 {
			if err := t.player.SetVolume(ctx, 0); err != nil {
				log.Warn().Err(err).Str("player", t.raw).Msg("session: mute failed")
			}
		}
		return
	}
	if err := t.player.SetVolume(ctx, 0); err != nil {
		log.Warn().Err(err).Str("player", t.raw).Msg("session: mute failed")
		return
	}
	t.savedVolume = volume
	t.muted = true
}

func (t *tracker) unmute(ctx context.Context) {
	if !t.muted {
		return
	}

	if err := t.player.SetVolume(ctx, t.savedVolume); err != nil {
		log.Warn().Err(err).Str("player", t.raw).Msg("session: unmute failed")
		return
	}
	t.muted = false
}
