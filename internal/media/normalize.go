package media

const DefaultArtURLLimit = 1000

type NormalizeOptions struct {
	ArtURLLimit int
	AlbumArt    bool
}

func DefaultNormalizeOptions() NormalizeOptions {
	return NormalizeOptions{
		ArtURLLimit: DefaultArtURLLimit,
		AlbumArt:    true,
	}
}

func NormalizeMetadata(native NativeMetadata, options NormalizeOptions) MetadataInfo {
	limit := options.ArtURLLimit
	if limit <= 0 {
		limit = DefaultArtURLLimit
	}

	artURL := native.ArtURL
	if !options.AlbumArt || len(artURL) >= limit {
		artURL = ""
	}

	duration := UnknownDuration
	if native.HasLength && native.Length >= 0 {
		duration = native.Length.Milliseconds()
	}

	return MetadataInfo{
		TrackID:     native.TrackID,
		Title:       native.Title,
		Artist:      first(native.Artists),
		Album:       native.Album,
		AlbumArtist: first(native.AlbumArtists),
		TrackNumber: native.TrackNumber,
		DurationMS:  duration,
		ArtURL:      artURL,
		TrackURL:    native.URL,
	}
}

func NormalizePlayback(status string, canSkip bool, positionMS int64) PlaybackInfo {
	if positionMS < 0 {
		positionMS = UnknownPosition
	}
	return PlaybackInfo{
		State:      ParsePlaybackState(status),
		PositionMS: positionMS,
		CanSkip:    canSkip,
	}
}

// MergeDuration fills an unknown duration from the last emitted metadata.
func MergeDuration(next MetadataInfo, cached *MetadataInfo) MetadataInfo {
	if next.DurationMS == UnknownDuration && cached != nil {
		next.DurationMS = cached.DurationMS
	}
	return next
}

// ApplyTimeline folds a late duration into the cached metadata. The bool
// reports whether the result differs from what was last emitted.
func ApplyTimeline(cached *MetadataInfo, durationMS int64) (MetadataInfo, bool) {
	if cached == nil {
		return MetadataInfo{}, false
	}
	if durationMS == UnknownDuration || cached.DurationMS == durationMS {
		return *cached, false
	}
	updated := *cached
	updated.DurationMS = durationMS
	return updated, true
}

// MergePosition fills an unknown position from the last emitted playback info.
func MergePosition(next PlaybackInfo, cached *PlaybackInfo) PlaybackInfo {
	if next.PositionMS == UnknownPosition && cached != nil {
		next.PositionMS = cached.PositionMS
	}
	return next
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
