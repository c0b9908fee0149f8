package main

import (
	"context"
	"mediabridge/internal/config"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
)

// configReloader pushes edits of the config file into the running daemon.
// Only fields that differ from the previous file are applied, so an
// allow-list the host pushed is not clobbered by an unrelated edit.
type configReloader struct {
	mu       sync.Mutex
	current  *config.Config
	commands *hostCommands
}

func newConfigReloader(initial *config.Config, commands *hostCommands) *configReloader {
	return &configReloader{current: initial, commands: commands}
}

func (r *configReloader) apply(ctx context.Context, next *config.Config) {
	r.mu.Lock()
	previous := r.current
	r.current = next
	r.mu.Unlock()

	if !slices.Equal(previous.AllowList, next.AllowList) {
		if err := r.commands.SetAllowList(ctx, next.AllowList); err != nil {
			log.Warn().Err(err).Msg("mediabridge: applying reloaded allow list failed")
		}
	}
	if previous.AlbumArt != next.AlbumArt {
		if err := r.commands.SetAlbumArt(ctx, next.AlbumArt); err != nil {
			log.Warn().Err(err).Msg("mediabridge: applying reloaded album art setting failed")
		}
	}
	if previous.Admission != next.Admission || previous.ListenAddr != next.ListenAddr {
		log.Warn().Msg("mediabridge: admission and listen_addr changes apply after a restart")
	}
}
