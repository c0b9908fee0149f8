//go:build linux

package mpris

import (
	"context"
	"errors"
	"fmt"
	"mediabridge/internal/platform"
	"sort"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
)

const (
	busNamePrefix       = "org.mpris.MediaPlayer2."
	objectPath          = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	rootInterface       = "org.mpris.MediaPlayer2"
	playerInterface     = "org.mpris.MediaPlayer2.Player"
	propertiesInterface = "org.freedesktop.DBus.Properties"
	busInterface        = "org.freedesktop.DBus"

	signalNameOwnerChanged  = busInterface + ".NameOwnerChanged"
	signalPropertiesChanged = propertiesInterface + ".PropertiesChanged"
	signalSeeked            = playerInterface + ".Seeked"

	signalBuffer  = 64
	watcherBuffer = 32
)

var ErrClosed = errors.New("mpris source closed")

// Source talks to MPRIS players on the session bus. One connection and one
// signal channel serve every subscription. Subscriptions are keyed by bus
// name; one process may own several names, so a signal from a unique owner
// goes to every player that owner serves.
type Source struct {
	conn    *dbus.Conn
	signals chan *dbus.Signal

	mu       sync.Mutex
	players  map[string]*Player
	watchers map[*watcher]struct{}
	closed   bool
	done     chan struct{}
	wg       sync.WaitGroup
}

type watcher struct {
	ctx     context.Context
	changes chan platform.PlayerChange
}

func New() (*Source, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return newSource(conn)
}

func newSource(conn *dbus.Conn) (*Source, error) {
	matches := [][]dbus.MatchOption{
		{
			dbus.WithMatchSender(busInterface),
			dbus.WithMatchInterface(busInterface),
			dbus.WithMatchMember("NameOwnerChanged"),
			dbus.WithMatchOption("arg0namespace", rootInterface),
		},
		{
			dbus.WithMatchObjectPath(objectPath),
			dbus.WithMatchInterface(propertiesInterface),
			dbus.WithMatchMember("PropertiesChanged"),
		},
		{
			dbus.WithMatchObjectPath(objectPath),
			dbus.WithMatchInterface(playerInterface),
			dbus.WithMatchMember("Seeked"),
		},
	}
	for _, match := range matches {
		if err := conn.AddMatchSignal(match...); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("add signal match: %w", err)
		}
	}

	s := &Source{
		conn:     conn,
		signals:  make(chan *dbus.Signal, signalBuffer),
		players:  make(map[string]*Player),
		watchers: make(map[*watcher]struct{}),
		done:     make(chan struct{}),
	}
	conn.Signal(s.signals)

	s.wg.Add(1)
	go s.demux()

	return s, nil
}

func (s *Source) ListPlayers(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.conn.BusObject().CallWithContext(ctx, busInterface+".ListNames", 0).Store(&names); err != nil {
		return nil, fmt.Errorf("list bus names: %w", err)
	}

	players := make([]string, 0, len(names))
	for _, name := range names {
		if strings.HasPrefix(name, busNamePrefix) {
			players = append(players, name)
		}
	}
	sort.Strings(players)
	return players, nil
}

// WatchPlayers reports players appearing and vanishing until ctx is done or
// the source is closed.
func (s *Source) WatchPlayers(ctx context.Context) (<-chan platform.PlayerChange, error) {
	w := &watcher{ctx: ctx, changes: make(chan platform.PlayerChange, watcherBuffer)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.watchers[w] = struct{}{}
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		s.mu.Lock()
		delete(s.watchers, w)
		s.mu.Unlock()
	}()

	return w.changes, nil
}

func (s *Source) DisplayName(ctx context.Context, identity string) (string, error) {
	var name string
	err := s.conn.Object(identity, objectPath).
		CallWithContext(ctx, propertiesInterface+".Get", 0, rootInterface, "Identity").
		Store(&name)
	if err != nil {
		return "", fmt.Errorf("read identity of %s: %w", identity, err)
	}
	return name, nil
}

func (s *Source) Subscribe(ctx context.Context, identity string) (platform.Player, error) {
	var owner string
	if err := s.conn.BusObject().CallWithContext(ctx, busInterface+".GetNameOwner", 0, identity).Store(&owner); err != nil {
		return nil, fmt.Errorf("resolve owner of %s: %w", identity, err)
	}

	p := newPlayer(s, identity, owner)
	if err := s.register(p); err != nil {
		return nil, err
	}
	go p.pump()

	log.Debug().Str("player", identity).Str("owner", owner).Msg("mpris: subscribed")
	return p, nil
}

// register replaces any earlier subscription to the same bus name.
func (s *Source) register(p *Player) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		p.shutdown()
		return ErrClosed
	}
	previous := s.players[p.identity]
	s.players[p.identity] = p
	s.mu.Unlock()

	if previous != nil {
		previous.shutdown()
	}
	return nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	players := make([]*Player, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, p)
	}
	s.players = make(map[string]*Player)
	s.mu.Unlock()

	for _, p := range players {
		p.shutdown()
	}

	s.conn.RemoveSignal(s.signals)
	err := s.conn.Close()
	s.wg.Wait()
	return err
}

func (s *Source) forget(p *Player) {
	s.mu.Lock()
	if current, ok := s.players[p.identity]; ok && current == p {
		delete(s.players, p.identity)
	}
	s.mu.Unlock()
}

func (s *Source) demux() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case signal, ok := <-s.signals:
			if !ok {
				return
			}
			s.route(signal)
		}
	}
}

func (s *Source) route(signal *dbus.Signal) {
	switch signal.Name {
	case signalNameOwnerChanged:
		s.handleOwnerChange(signal)
	case signalPropertiesChanged, signalSeeked:
		if signal.Path != objectPath {
			return
		}
		for _, p := range s.ownedBy(signal.Sender) {
			p.deliver(signal)
		}
	}
}

func (s *Source) ownedBy(owner string) []*Player {
	s.mu.Lock()
	defer s.mu.Unlock()

	var players []*Player
	for _, p := range s.players {
		if p.owner == owner {
			players = append(players, p)
		}
	}
	return players
}

func (s *Source) handleOwnerChange(signal *dbus.Signal) {
	if len(signal.Body) != 3 {
		return
	}
	name, _ := signal.Body[0].(string)
	oldOwner, _ := signal.Body[1].(string)
	newOwner, _ := signal.Body[2].(string)
	if !strings.HasPrefix(name, busNamePrefix) {
		return
	}

	if oldOwner != "" {
		s.mu.Lock()
		p := s.players[name]
		if p != nil && p.owner == oldOwner {
			delete(s.players, name)
		} else {
			p = nil
		}
		s.mu.Unlock()
		if p != nil {
			p.shutdown()
		}
		s.notify(platform.PlayerChange{Identity: name, Added: false})
	}
	if newOwner != "" {
		s.notify(platform.PlayerChange{Identity: name, Added: true})
	}
}

func (s *Source) notify(change platform.PlayerChange) {
	s.mu.Lock()
	watchers := make([]*watcher, 0, len(s.watchers))
	for w := range s.watchers {
		watchers = append(watchers, w)
	}
	s.mu.Unlock()

	for _, w := range watchers {
		select {
		case w.changes <- change:
		case <-w.ctx.Done():
		case <-s.done:
			return
		}
	}
}
