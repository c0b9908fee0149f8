package session

import (
	"context"
	"fmt"
	"mediabridge/internal/admission"
	"mediabridge/internal/media"
	"mediabridge/internal/notify"
	"mediabridge/internal/platform"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	DefaultIdentityTimeout = 200 * time.Millisecond
	DefaultCallTimeout     = 2 * time.Second
	DefaultSeekDebounce    = time.Second
	DefaultTrackerInbox    = 8
)

type Options struct {
	IdentityTimeout time.Duration
	CallTimeout     time.Duration
	SeekDebounce    time.Duration
	TrackerInbox    int
	ArtURLLimit     int
	DisableAlbumArt bool
	Clock           clockwork.Clock
}

func DefaultOptions() Options {
	return Options{
		IdentityTimeout: DefaultIdentityTimeout,
		CallTimeout:     DefaultCallTimeout,
		SeekDebounce:    DefaultSeekDebounce,
		TrackerInbox:    DefaultTrackerInbox,
		ArtURLLimit:     media.DefaultArtURLLimit,
		Clock:           clockwork.NewRealClock(),
	}
}

func (o Options) withDefaults() Options {
	defaults := DefaultOptions()
	if o.IdentityTimeout <= 0 {
		o.IdentityTimeout = defaults.IdentityTimeout
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = defaults.CallTimeout
	}
	if o.SeekDebounce <= 0 {
		o.SeekDebounce = defaults.SeekDebounce
	}
	if o.TrackerInbox <= 0 {
		o.TrackerInbox = defaults.TrackerInbox
	}
	if o.ArtURLLimit <= 0 {
		o.ArtURLLimit = defaults.ArtURLLimit
	}
	if o.Clock == nil {
		o.Clock = defaults.Clock
	}
	return o
}

// Hub bundles the channels shared between the host boundary and the
// listener.
type Hub struct {
	Outbound *Dispatcher
	Commands *Inlet
	Filter   admission.Filter
	Notifier notify.Notifier
	Picker   platform.FilePicker
	Theme    platform.ThemeSource
}

type Listener struct {
	source   platform.Source
	hub      Hub
	options  Options
	albumArt atomic.Bool
	registry *Registry
	wg       sync.WaitGroup
}

func NewListener(source platform.Source, hub Hub, options Options) *Listener {
	options = options.withDefaults()
	if hub.Outbound == nil {
		hub.Outbound = NewDispatcher(nil, DefaultOutboundQueue)
	}
	if hub.Commands == nil {
		hub.Commands = NewInlet(DefaultCommandQueue)
	}

	l := &Listener{
		source:  source,
		hub:     hub,
		options: options,
	}
	l.albumArt.Store(!options.DisableAlbumArt)
	l.registry = NewRegistry(source, hub.Outbound, hub.Filter, options, &l.albumArt)
	return l
}

func (l *Listener) Registry() *Registry {
	return l.registry
}

func (l *Listener) AlbumArt() bool {
	return l.albumArt.Load()
}

// Run tracks players until a Shutdown command arrives or ctx is done. Failing
// to enumerate or watch players is returned as an error.
func (l *Listener) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		l.registry.Shutdown()
		l.hub.Commands.close()
		cancel()
		l.wg.Wait()
	}()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.hub.Outbound.Run(ctx)
	}()

	if l.hub.Theme != nil {
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.observeTheme(ctx)
		}()
	}

	l.registry.bind(ctx)

	// Watch first so players appearing during enumeration are queued.
	changes, err := l.source.WatchPlayers(ctx)
	if err != nil {
		return fmt.Errorf("watch players: %w", err)
	}

	listCtx, listCancel := context.WithTimeout(ctx, l.options.CallTimeout)
	players, err := l.source.ListPlayers(listCtx)
	listCancel()
	if err != nil {
		return fmt.Errorf("list players: %w", err)
	}

	for _, raw := range players {
		l.registry.add(ctx, raw, false)
	}
	l.registry.announce()

	log.Info().Int("players", len(players)).Msg("session: listener running")

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.watch(ctx, changes)
	}()

	return l.serve(ctx)
}

func (l *Listener) watch(ctx context.Context, changes <-chan platform.PlayerChange) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				log.Debug().Msg("session: player watch ended")
				return
			}
			if change.Added {
				l.registry.PlayerAdded(ctx, change.Identity)
			} else {
				l.registry.PlayerRemoved(change.Identity)
			}
		}
	}
}

func (l *Listener) serve(ctx context.Context) error {
	commands := l.hub.Commands.commands()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("session: listener stopping")
			return nil
		case cmd := <-commands:
			if cmd.Kind == CommandShutdown {
				log.Info().Msg("session: shutdown requested")
				return nil
			}
			l.handle(ctx, cmd)
		}
	}
}

func (l *Listener) handle(ctx context.Context, cmd Command) {
	switch {
	case cmd.perPlayer():
		l.registry.Route(ctx, cmd)
	case cmd.Kind == CommandRefreshSessions:
		l.registry.Refresh(ctx)
	case cmd.Kind == CommandSetAlbumArt:
		l.albumArt.Store(cmd.Enabled)
		log.Debug().Bool("enabled", cmd.Enabled).Msg("session: album art toggled")
	case cmd.Kind == CommandNotify:
		if l.hub.Notifier == nil {
			return
		}
		if err := l.hub.Notifier.Notify(cmd.Title, cmd.Body); err != nil {
			log.Warn().Err(err).Msg("session: notification failed")
		}
	case cmd.Kind == CommandLaunchFilePicker:
		l.pickFile(ctx, cmd)
	}
}

// pickFile runs the dialog off the command loop. The host always gets a
// FilePicked answer, with an empty URI when nothing was chosen.
func (l *Listener) pickFile(ctx context.Context, cmd Command) {
	if l.hub.Picker == nil {
		log.Debug().Str("request", cmd.RequestID).Msg("session: no file picker available")
		l.hub.Outbound.Emit(FilePicked(cmd.RequestID, ""))
		return
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		uri, err := l.hub.Picker.PickFile(ctx, cmd.File)
		if err != nil {
			log.Warn().Err(err).Str("request", cmd.RequestID).Msg("session: file picker failed")
			uri = ""
		}
		l.hub.Outbound.Emit(FilePicked(cmd.RequestID, uri))
	}()
}

// observeTheme forwards dark-mode changes. A desktop without a settings
// portal only loses the theme events.
func (l *Listener) observeTheme(ctx context.Context) {
	changes, err := l.hub.Theme.WatchDarkMode(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("session: theme observer unavailable")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case dark, ok := <-changes:
			if !ok {
				return
			}
			l.hub.Outbound.Emit(DarkModeChanged(dark))
		}
	}
}
