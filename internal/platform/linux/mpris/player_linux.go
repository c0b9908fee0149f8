//go:build linux

package mpris

import (
	"context"
	"fmt"
	"mediabridge/internal/media"
	"mediabridge/internal/platform"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const (
	changeBuffer = 16
	readTimeout  = 2 * time.Second
)

// Player is one subscription to an MPRIS player. Its Changes channel closes
// when the player leaves the bus or the subscription is closed.
type Player struct {
	source   *Source
	identity string
	owner    string
	object   dbus.BusObject

	signals chan *dbus.Signal
	changes chan platform.Change

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

func newPlayer(source *Source, identity string, owner string) *Player {
	ctx, cancel := context.WithCancel(context.Background())
	return &Player{
		source:   source,
		identity: identity,
		owner:    owner,
		object:   source.conn.Object(identity, objectPath),
		signals:  make(chan *dbus.Signal, signalBuffer),
		changes:  make(chan platform.Change, changeBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (p *Player) Metadata(ctx context.Context) (media.NativeMetadata, error) {
	variant, err := p.property(ctx, "Metadata")
	if err != nil {
		return media.NativeMetadata{}, err
	}
	values, ok := variant.Value().(map[string]dbus.Variant)
	if !ok {
		return media.NativeMetadata{}, fmt.Errorf("metadata of %s has type %s", p.identity, variant.Signature())
	}
	return parseMetadata(values), nil
}

func (p *Player) PlaybackStatus(ctx context.Context) (string, error) {
	variant, err := p.property(ctx, "PlaybackStatus")
	if err != nil {
		return "", err
	}
	status, ok := variant.Value().(string)
	if !ok {
		return "", fmt.Errorf("playback status of %s has type %s", p.identity, variant.Signature())
	}
	return status, nil
}

func (p *Player) CanGoNext(ctx context.Context) (bool, error) {
	variant, err := p.property(ctx, "CanGoNext")
	if err != nil {
		return false, err
	}
	canGoNext, ok := variant.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CanGoNext of %s has type %s", p.identity, variant.Signature())
	}
	return canGoNext, nil
}

func (p *Player) PositionMS(ctx context.Context) (int64, error) {
	variant, err := p.property(ctx, "Position")
	if err != nil {
		return media.UnknownPosition, err
	}
	micros, ok := int64Value(variant)
	if !ok {
		return media.UnknownPosition, fmt.Errorf("position of %s has type %s", p.identity, variant.Signature())
	}
	return micros / 1000, nil
}

func (p *Player) Volume(ctx context.Context) (float64, error) {
	variant, err := p.property(ctx, "Volume")
	if err != nil {
		return 0, err
	}
	volume, ok := variant.Value().(float64)
	if !ok {
		return 0, fmt.Errorf("volume of %s has type %s", p.identity, variant.Signature())
	}
	return volume, nil
}

func (p *Player) SetVolume(ctx context.Context, volume float64) error {
	call := p.object.CallWithContext(ctx, propertiesInterface+".Set", 0, playerInterface, "Volume", dbus.MakeVariant(volume))
	if call.Err != nil {
		return fmt.Errorf("set volume of %s: %w", p.identity, call.Err)
	}
	return nil
}

func (p *Player) Next(ctx context.Context) error {
	call := p.object.CallWithContext(ctx, playerInterface+".Next", 0)
	if call.Err != nil {
		return fmt.Errorf("next on %s: %w", p.identity, call.Err)
	}
	return nil
}

func (p *Player) Changes() <-chan platform.Change {
	return p.changes
}

func (p *Player) Close() error {
	p.source.forget(p)
	p.shutdown()
	return nil
}

func (p *Player) shutdown() {
	p.stopOnce.Do(p.cancel)
}

func (p *Player) deliver(signal *dbus.Signal) {
	select {
	case p.signals <- signal:
	case <-p.ctx.Done():
	}
}

func (p *Player) property(ctx context.Context, name string) (dbus.Variant, error) {
	var variant dbus.Variant
	err := p.object.CallWithContext(ctx, propertiesInterface+".Get", 0, playerInterface, name).Store(&variant)
	if err != nil {
		return dbus.Variant{}, fmt.Errorf("read %s of %s: %w", name, p.identity, err)
	}
	return variant, nil
}

func (p *Player) pump() {
	defer close(p.changes)

	for {
		select {
		case <-p.ctx.Done():
			return
		case signal := <-p.signals:
			for _, change := range p.translate(signal) {
				select {
				case p.changes <- change:
				case <-p.ctx.Done():
					return
				}
			}
		}
	}
}

func (p *Player) translate(signal *dbus.Signal) []platform.Change {
	switch signal.Name {
	case signalSeeked:
		if len(signal.Body) != 1 {
			return []platform.Change{{Kind: platform.ChangeSeeked, Err: fmt.Errorf("seeked signal of %s has %d values", p.identity, len(signal.Body))}}
		}
		micros, ok := int64Value(dbus.MakeVariant(signal.Body[0]))
		if !ok {
			return []platform.Change{{Kind: platform.ChangeSeeked, Err: fmt.Errorf("seeked signal of %s has a non-integer position", p.identity)}}
		}
		return []platform.Change{{Kind: platform.ChangeSeeked, PositionMS: micros / 1000}}
	case signalPropertiesChanged:
		return p.translateProperties(signal)
	default:
		return nil
	}
}

func (p *Player) translateProperties(signal *dbus.Signal) []platform.Change {
	if len(signal.Body) != 3 {
		return nil
	}
	iface, _ := signal.Body[0].(string)
	if iface != playerInterface {
		return nil
	}
	changed, _ := signal.Body[1].(map[string]dbus.Variant)
	invalidated, _ := signal.Body[2].([]string)

	var changes []platform.Change
	for _, name := range []string{"Metadata", "PlaybackStatus", "CanGoNext"} {
		variant, ok := changed[name]
		if !ok {
			if !lo.Contains(invalidated, name) {
				continue
			}
			ctx, cancel := context.WithTimeout(p.ctx, readTimeout)
			var err error
			variant, err = p.property(ctx, name)
			cancel()
			if err != nil {
				log.Debug().Err(err).Str("player", p.identity).Str("property", name).Msg("mpris: invalidated property read failed")
				changes = append(changes, platform.Change{Kind: changeKind(name), Err: err})
				continue
			}
		}
		changes = append(changes, p.convert(name, variant))
	}
	return changes
}

func (p *Player) convert(name string, variant dbus.Variant) platform.Change {
	switch name {
	case "Metadata":
		values, ok := variant.Value().(map[string]dbus.Variant)
		if !ok {
			return platform.Change{Kind: platform.ChangeMetadata, Err: fmt.Errorf("metadata of %s has type %s", p.identity, variant.Signature())}
		}
		return platform.Change{Kind: platform.ChangeMetadata, Metadata: parseMetadata(values)}
	case "PlaybackStatus":
		status, ok := variant.Value().(string)
		if !ok {
			return platform.Change{Kind: platform.ChangePlaybackStatus, Err: fmt.Errorf("playback status of %s has type %s", p.identity, variant.Signature())}
		}
		return platform.Change{Kind: platform.ChangePlaybackStatus, Status: status}
	default:
		canSkip, ok := variant.Value().(bool)
		if !ok {
			return platform.Change{Kind: platform.ChangeCanSkip, Err: fmt.Errorf("CanGoNext of %s has type %s", p.identity, variant.Signature())}
		}
		return platform.Change{Kind: platform.ChangeCanSkip, CanSkip: canSkip}
	}
}

func changeKind(property string) platform.ChangeKind {
	switch property {
	case "Metadata":
		return platform.ChangeMetadata
	case "PlaybackStatus":
		return platform.ChangePlaybackStatus
	default:
		return platform.ChangeCanSkip
	}
}
