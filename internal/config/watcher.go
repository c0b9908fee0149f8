package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const DefaultReloadDelay = 250 * time.Millisecond

// Watcher reloads the config file when it changes on disk. Editors often
// write a file several times in a row, so reloads wait for a quiet period.
type Watcher struct {
	path     string
	delay    time.Duration
	onReload func(*Config)
}

func NewWatcher(path string, delay time.Duration, onReload func(*Config)) *Watcher {
	if delay <= 0 {
		delay = DefaultReloadDelay
	}
	return &Watcher{path: filepath.Clean(path), delay: delay, onReload: onReload}
}

func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer fsw.Close()

	// the directory survives editors that replace the file on save
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}

	debounced := debounce.New(w.delay)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounced(w.reload)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("config: watcher error")
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		log.Warn().Err(err).Str("path", w.path).Msg("config: reload failed, keeping current config")
		return
	}
	log.Info().Str("path", w.path).Msg("config: reloaded")
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
