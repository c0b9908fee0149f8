package session

import (
	"context"
	"mediabridge/internal/admission"
	"mediabridge/internal/media"
	"mediabridge/internal/platform"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Registry reconciles the players the platform reports against the admission
// filter and keeps exactly one tracker per present, allowed player.
type Registry struct {
	source   platform.Source
	out      *Dispatcher
	filter   admission.Filter
	options  Options
	albumArt *atomic.Bool

	mu       sync.Mutex
	base     context.Context
	known    map[string]string
	trackers map[string]*tracker
	closed   bool
}

func NewRegistry(source platform.Source, out *Dispatcher, filter admission.Filter, options Options, albumArt *atomic.Bool) *Registry {
	return &Registry{
		source:   source,
		out:      out,
		filter:   filter,
		options:  options.withDefaults(),
		albumArt: albumArt,
		base:     context.Background(),
		known:    make(map[string]string),
		trackers: make(map[string]*tracker),
	}
}

// bind sets the context every tracker started from now on derives from.
func (r *Registry) bind(ctx context.Context) {
	r.mu.Lock()
	r.base = ctx
	r.closed = false
	r.mu.Unlock()
}

// Refresh re-evaluates every known player against the filter.
func (r *Registry) Refresh(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	raws := lo.Keys(r.known)
	sort.Strings(raws)
	for _, raw := range raws {
		allowed := r.allowed(ctx, raw)
		running := r.runningLocked(raw)
		switch {
		case allowed && !running:
			r.startLocked(raw)
		case !allowed && r.trackers[raw] != nil:
			r.stopLocked(raw)
		}
	}
}

// PlayerAdded records a new player and starts tracking it when allowed. The
// display name lookup happens outside the lock and is bounded by
// IdentityTimeout; a player that never answers is recorded with no name.
func (r *Registry) PlayerAdded(ctx context.Context, raw string) {
	r.add(ctx, raw, true)
}

func (r *Registry) add(ctx context.Context, raw string, announce bool) {
	name := r.displayName(ctx, raw)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	r.known[raw] = name
	if !r.runningLocked(raw) && r.allowed(ctx, raw) {
		r.startLocked(raw)
	}
	if announce {
		r.announceLocked()
	}
}

func (r *Registry) PlayerRemoved(raw string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	if r.trackers[raw] != nil {
		r.stopLocked(raw)
	}
	delete(r.known, raw)
	r.announceLocked()
}

// Shutdown stops every tracker and forgets every player. Later adds are
// ignored until the registry is bound again.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for raw := range r.trackers {
		r.stopLocked(raw)
	}
	r.known = make(map[string]string)
	r.closed = true
}

// Route delivers a per-player command to every live instance sharing the
// command's logical identity and reports how many accepted it.
func (r *Registry) Route(ctx context.Context, cmd Command) int {
	identity := media.NormalizeIdentity(cmd.Identity)

	r.mu.Lock()
	targets := make([]*tracker, 0, 1)
	for raw, t := range r.trackers {
		if t.identity == identity && r.runningLocked(raw) {
			targets = append(targets, t)
		}
	}
	r.mu.Unlock()

	delivered := 0
	for _, t := range targets {
		if t.deliver(ctx, cmd) {
			delivered++
		}
	}
	if delivered == 0 {
		log.Debug().Str("player", identity).Str("command", cmd.Kind.String()).Msg("session: no tracker for command, dropping")
	}
	return delivered
}

// Active lists the raw identities with a live tracker.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := make([]string, 0, len(r.trackers))
	for raw := range r.trackers {
		if r.runningLocked(raw) {
			active = append(active, raw)
		}
	}
	sort.Strings(active)
	return active
}

// States reports each tracker's lifecycle state by raw identity.
func (r *Registry) States() map[string]TrackerState {
	r.mu.Lock()
	defer r.mu.Unlock()

	return lo.MapValues(r.trackers, func(t *tracker, _ string) TrackerState {
		return t.State()
	})
}

func (r *Registry) Snapshot() []media.SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	return media.Snapshot(r.known)
}

func (r *Registry) announce() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.announceLocked()
}

func (r *Registry) announceLocked() {
	r.out.Emit(SessionsChanged(media.Snapshot(r.known)))
}

func (r *Registry) allowed(ctx context.Context, raw string) bool {
	if r.filter == nil {
		return false
	}
	return r.filter.Allowed(ctx, media.NormalizeIdentity(raw))
}

func (r *Registry) displayName(ctx context.Context, raw string) string {
	nameCtx, cancel := context.WithTimeout(ctx, r.options.IdentityTimeout)
	defer cancel()

	type result struct {
		name string
		err  error
	}
	results := make(chan result, 1)
	go func() {
		name, err := r.source.DisplayName(nameCtx, raw)
		results <- result{name: name, err: err}
	}()

	select {
	case res := <-results:
		if res.err != nil {
			log.Debug().Err(res.err).Str("player", raw).Msg("session: display name unavailable")
			return ""
		}
		return res.name
	case <-nameCtx.Done():
		log.Debug().Str("player", raw).Msg("session: display name timed out")
		return ""
	}
}

func (r *Registry) runningLocked(raw string) bool {
	t := r.trackers[raw]
	return t != nil && !t.exited()
}

func (r *Registry) startLocked(raw string) {
	t := newTracker(raw, r.source, r.out, r.options, r.albumArt)
	r.trackers[raw] = t
	t.start(r.base)
	log.Info().Str("player", raw).Msg("session: tracking player")
}

func (r *Registry) stopLocked(raw string) {
	t := r.trackers[raw]
	delete(r.trackers, raw)
	if t == nil {
		return
	}
	t.stop()
	log.Info().Str("player", raw).Msg("session: stopped tracking player")
}
