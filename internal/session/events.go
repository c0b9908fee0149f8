package session

import (
	"context"
	"mediabridge/internal/media"
	"mediabridge/internal/platform"
)

type EventKind int

const (
	EventSessionsChanged EventKind = iota
	EventMetadataChanged
	EventPlaybackStateChanged
	EventIPCCallback
	EventFilePicked
	EventDarkModeChanged
	eventAllowedQuery
)

func (k EventKind) String() string {
	switch k {
	case EventSessionsChanged:
		return "sessions-changed"
	case EventMetadataChanged:
		return "metadata-changed"
	case EventPlaybackStateChanged:
		return "playback-state-changed"
	case EventIPCCallback:
		return "ipc-callback"
	case EventFilePicked:
		return "file-picked"
	case EventDarkModeChanged:
		return "dark-mode-changed"
	case eventAllowedQuery:
		return "allowed-query"
	default:
		return "unknown"
	}
}

// Event is one outbound notification. Identity is always the logical
// identity, never a raw instance name.
type Event struct {
	Kind     EventKind
	Identity string
	Sessions []media.SessionInfo
	Metadata media.MetadataInfo
	Playback media.PlaybackInfo
	Command  string
	Arg      string

	RequestID string
	URI       string
	Dark      bool

	reply chan bool
}

func SessionsChanged(sessions []media.SessionInfo) Event {
	return Event{Kind: EventSessionsChanged, Sessions: sessions}
}

func MetadataChanged(identity string, metadata media.MetadataInfo) Event {
	return Event{Kind: EventMetadataChanged, Identity: identity, Metadata: metadata}
}

func PlaybackStateChanged(identity string, playback media.PlaybackInfo) Event {
	return Event{Kind: EventPlaybackStateChanged, Identity: identity, Playback: playback}
}

func IPCCallback(command string, arg string) Event {
	return Event{Kind: EventIPCCallback, Command: command, Arg: arg}
}

// FilePicked answers a file picker request. URI is empty when nothing was
// chosen.
func FilePicked(requestID string, uri string) Event {
	return Event{Kind: EventFilePicked, RequestID: requestID, URI: uri}
}

func DarkModeChanged(dark bool) Event {
	return Event{Kind: EventDarkModeChanged, Dark: dark}
}

// Sink is the host boundary. All methods are called from the dispatcher's
// consumer goroutine, one at a time.
type Sink interface {
	SessionsChanged(sessions []media.SessionInfo)
	MetadataChanged(identity string, metadata media.MetadataInfo)
	PlaybackStateChanged(identity string, playback media.PlaybackInfo)
	IPCCallback(command string, arg string)
	FilePicked(requestID string, uri string)
	DarkModeChanged(dark bool)
	IsAppIDAllowed(ctx context.Context, identity string) bool
}

type CommandKind int

const (
	CommandSkip CommandKind = iota
	CommandMute
	CommandUnmute
	CommandRefreshSessions
	CommandShutdown
	CommandSetAlbumArt
	CommandNotify
	CommandLaunchFilePicker
)

func (k CommandKind) String() string {
	switch k {
	case CommandSkip:
		return "skip"
	case CommandMute:
		return "mute"
	case CommandUnmute:
		return "unmute"
	case CommandRefreshSessions:
		return "refresh-sessions"
	case CommandShutdown:
		return "shutdown"
	case CommandSetAlbumArt:
		return "set-album-art"
	case CommandNotify:
		return "notify"
	case CommandLaunchFilePicker:
		return "launch-file-picker"
	default:
		return "unknown"
	}
}

type Command struct {
	Kind     CommandKind
	Identity string
	Enabled  bool
	Title    string
	Body     string

	RequestID string
	File      platform.FileRequest
}

func (c Command) perPlayer() bool {
	return c.Kind == CommandSkip || c.Kind == CommandMute || c.Kind == CommandUnmute
}
