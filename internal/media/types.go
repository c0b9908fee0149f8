package media

import (
	"encoding/json"
	"time"
)

const (
	UnknownDuration int64 = -1
	UnknownPosition int64 = -1
)

type PlaybackState int

const (
	StateNone PlaybackState = iota
	StateStopped
	StatePaused
	StatePlaying
	StateWaiting
	StateOther
)

var playbackStateNames = map[PlaybackState]string{
	StateNone:    "None",
	StateStopped: "Stopped",
	StatePaused:  "Paused",
	StatePlaying: "Playing",
	StateWaiting: "Waiting",
	StateOther:   "Other",
}

func (s PlaybackState) String() string {
	if name, ok := playbackStateNames[s]; ok {
		return name
	}
	return playbackStateNames[StateOther]
}

func (s PlaybackState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *PlaybackState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	*s = ParsePlaybackState(name)
	return nil
}

// ParsePlaybackState maps a platform status word onto PlaybackState. An empty
// status means the session is gone.
func ParsePlaybackState(status string) PlaybackState {
	if status == "" {
		return StateNone
	}
	for state, name := range playbackStateNames {
		if name == status {
			return state
		}
	}
	return StateOther
}

type SessionInfo struct {
	Identity    string `json:"appId"`
	DisplayName string `json:"appName"`
}

type MetadataInfo struct {
	TrackID     string `json:"trackId"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	AlbumArtist string `json:"albumArtist"`
	TrackNumber int32  `json:"trackNumber"`
	DurationMS  int64  `json:"duration"`
	ArtURL      string `json:"artUrl"`
	TrackURL    string `json:"trackUrl"`
}

type PlaybackInfo struct {
	State      PlaybackState `json:"state"`
	PositionMS int64         `json:"position"`
	CanSkip    bool          `json:"canSkip"`
}

// NativeMetadata is what a platform adapter reads off the wire before any
// normalization. Multi-valued fields stay multi-valued here.
type NativeMetadata struct {
	TrackID      string
	Title        string
	Artists      []string
	Album        string
	AlbumArtists []string
	TrackNumber  int32
	Length       time.Duration
	HasLength    bool
	ArtURL       string
	URL          string
}
