package platform

import (
	"context"
	"errors"
	"mediabridge/internal/media"
)

var ErrUnsupported = errors.New("media sessions are not supported on this platform")

type Source interface {
	ListPlayers(ctx context.Context) ([]string, error)
	WatchPlayers(ctx context.Context) (<-chan PlayerChange, error)
	DisplayName(ctx context.Context, identity string) (string, error)
	Subscribe(ctx context.Context, identity string) (Player, error)
	Close() error
}

type Player interface {
	Metadata(ctx context.Context) (media.NativeMetadata, error)
	PlaybackStatus(ctx context.Context) (string, error)
	CanGoNext(ctx context.Context) (bool, error)
	PositionMS(ctx context.Context) (int64, error)
	Volume(ctx context.Context) (float64, error)
	SetVolume(ctx context.Context, volume float64) error
	Next(ctx context.Context) error
	// Changes is closed when the player disappears or the subscription ends.
	Changes() <-chan Change
	Close() error
}

// FileRequest describes one file chooser dialog. Filters are glob patterns.
type FileRequest struct {
	Save     bool
	Title    string
	FileName string
	Filters  []string
}

type FilePicker interface {
	// PickFile returns the URI of the chosen file, or "" when the user
	// dismissed the dialog.
	PickFile(ctx context.Context, req FileRequest) (string, error)
}

type ThemeSource interface {
	// WatchDarkMode sends the current preference, then every change, until
	// ctx is done.
	WatchDarkMode(ctx context.Context) (<-chan bool, error)
}

type PlayerChange struct {
	Identity string
	Added    bool
}

type ChangeKind int

const (
	ChangeMetadata ChangeKind = iota
	ChangePlaybackStatus
	ChangeCanSkip
	ChangeSeeked
	ChangeTimeline
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeMetadata:
		return "metadata"
	case ChangePlaybackStatus:
		return "playback-status"
	case ChangeCanSkip:
		return "can-skip"
	case ChangeSeeked:
		return "seeked"
	case ChangeTimeline:
		return "timeline"
	default:
		return "unknown"
	}
}

// Change is one native property notification. Err is set when the new value
// could not be read; the other fields are then meaningless.
type Change struct {
	Kind       ChangeKind
	Metadata   media.NativeMetadata
	Status     string
	CanSkip    bool
	PositionMS int64
	DurationMS int64
	Err        error
}
