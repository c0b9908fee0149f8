package hostws

import "mediabridge/internal/media"

const (
	frameSessionsChanged      = "sessionsChanged"
	frameMetadataChanged      = "metadataChanged"
	framePlaybackStateChanged = "playbackStateChanged"
	frameIPC                  = "ipc"
	frameFilePicked           = "filePicked"
	frameDarkModeChanged      = "darkModeChanged"
	frameIsAppIDAllowed       = "isAppIdAllowed"
	frameError                = "error"

	frameSkip             = "skip"
	frameMute             = "mute"
	frameUnmute           = "unmute"
	frameRefreshSessions  = "refreshSessions"
	frameShutdown         = "shutdown"
	frameSetAllowList     = "setAllowList"
	frameSetAlbumArt      = "setAlbumArt"
	frameNotify           = "notify"
	frameLaunchFilePicker = "launchFilePicker"
	frameAllowedReply     = "allowedReply"
)

type sessionsFrame struct {
	Type     string              `json:"type"`
	Sessions []media.SessionInfo `json:"sessions"`
}

type metadataFrame struct {
	Type     string             `json:"type"`
	AppID    string             `json:"appId"`
	Metadata media.MetadataInfo `json:"metadata"`
}

type playbackFrame struct {
	Type     string             `json:"type"`
	AppID    string             `json:"appId"`
	Playback media.PlaybackInfo `json:"playback"`
}

type ipcFrame struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Arg     string `json:"arg"`
}

type filePickedFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	URI       string `json:"uri"`
}

type darkModeFrame struct {
	Type string `json:"type"`
	Dark bool   `json:"dark"`
}

type queryFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	AppID     string `json:"appId"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Message string `json:"message"`
}

// hostFrame is any frame the host sends; which fields matter depends on Type.
type hostFrame struct {
	Type      string   `json:"type"`
	AppID     string   `json:"appId,omitempty"`
	AppIDs    []string `json:"appIds,omitempty"`
	Enabled   *bool    `json:"enabled,omitempty"`
	Title     string   `json:"title,omitempty"`
	Body      string   `json:"body,omitempty"`
	Arg       string   `json:"arg,omitempty"`
	RequestID string   `json:"requestId,omitempty"`
	Allowed   bool     `json:"allowed,omitempty"`
	Save      bool     `json:"save,omitempty"`
	FileName  string   `json:"fileName,omitempty"`
	Filters   []string `json:"filters,omitempty"`
}
