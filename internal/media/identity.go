package media

import (
	"sort"
	"strings"

	"github.com/samber/lo"
)

const instanceMarker = ".instance"

// NormalizeIdentity collapses numbered player instances into one logical
// identity, e.g. "org.mpris.MediaPlayer2.chromium.instance1234" becomes
// "org.mpris.MediaPlayer2.chromium.instancen". The host sees only logical
// identities.
func NormalizeIdentity(raw string) string {
	idx := strings.LastIndex(raw, instanceMarker)
	if idx < 0 {
		return raw
	}
	return raw[:idx] + instanceMarker + "n"
}

// Snapshot builds the full session list from raw identity -> display name.
// Instances sharing a logical identity are reported once.
func Snapshot(displayNames map[string]string) []SessionInfo {
	raws := lo.Keys(displayNames)
	sort.Strings(raws)

	byIdentity := make(map[string]int, len(raws))
	sessions := make([]SessionInfo, 0, len(raws))
	for _, raw := range raws {
		identity := NormalizeIdentity(raw)
		name := displayNames[raw]
		if idx, ok := byIdentity[identity]; ok {
			if sessions[idx].DisplayName == "" {
				sessions[idx].DisplayName = name
			}
			continue
		}
		byIdentity[identity] = len(sessions)
		sessions = append(sessions, SessionInfo{Identity: identity, DisplayName: name})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Identity < sessions[j].Identity
	})
	return sessions
}
