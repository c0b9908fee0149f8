//go:build linux

package mpris

import (
	"mediabridge/internal/media"
	"time"

	"github.com/godbus/dbus/v5"
)

// parseMetadata reads an MPRIS Metadata_Map. Players disagree on value types,
// so every field accepts the common variants.
func parseMetadata(values map[string]dbus.Variant) media.NativeMetadata {
	native := media.NativeMetadata{
		TrackID:      stringValue(values["mpris:trackid"]),
		Title:        stringValue(values["xesam:title"]),
		Artists:      stringsValue(values["xesam:artist"]),
		Album:        stringValue(values["xesam:album"]),
		AlbumArtists: stringsValue(values["xesam:albumArtist"]),
		ArtURL:       stringValue(values["mpris:artUrl"]),
		URL:          stringValue(values["xesam:url"]),
	}

	if number, ok := int64Value(values["xesam:trackNumber"]); ok {
		native.TrackNumber = int32(number)
	}

	if micros, ok := int64Value(values["mpris:length"]); ok && micros >= 0 {
		native.Length = time.Duration(micros) * time.Microsecond
		native.HasLength = true
	}

	return native
}

func stringValue(variant dbus.Variant) string {
	switch value := variant.Value().(type) {
	case string:
		return value
	case dbus.ObjectPath:
		return string(value)
	default:
		return ""
	}
}

func stringsValue(variant dbus.Variant) []string {
	switch value := variant.Value().(type) {
	case []string:
		return value
	case string:
		if value == "" {
			return nil
		}
		return []string{value}
	case []interface{}:
		values := make([]string, 0, len(value))
		for _, item := range value {
			if s, ok := item.(string); ok {
				values = append(values, s)
			}
		}
		return values
	default:
		return nil
	}
}

func int64Value(variant dbus.Variant) (int64, bool) {
	switch value := variant.Value().(type) {
	case int64:
		return value, true
	case uint64:
		return int64(value), true
	case int32:
		return int64(value), true
	case uint32:
		return int64(value), true
	case int16:
		return int64(value), true
	case uint16:
		return int64(value), true
	case uint8:
		return int64(value), true
	case int:
		return int64(value), true
	case float64:
		return int64(value), true
	default:
		return 0, false
	}
}
