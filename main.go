package main

import (
	"context"
	"errors"
	"fmt"
	"mediabridge/internal/admission"
	"mediabridge/internal/allowlist"
	"mediabridge/internal/config"
	"mediabridge/internal/db"
	"mediabridge/internal/hostws"
	"mediabridge/internal/logging"
	"mediabridge/internal/notify"
	"mediabridge/internal/platform"
	"mediabridge/internal/session"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

const appSlug = "mediabridge"

type flags struct {
	configPath string
	dataDir    string
	listenAddr string
	logLevel   string
	pretty     bool
}

// hostCommands is everything a host can ask of the daemon.
type hostCommands struct {
	*SessionService
	*SettingsService
}

var _ hostws.Commander = (*hostCommands)(nil)

// desktopPortal serves file dialogs and theme changes.
type desktopPortal interface {
	platform.FilePicker
	platform.ThemeSource
	Close() error
}

func main() {
	var f flags
	pflag.StringVarP(&f.configPath, "config", "c", "", "config file (default: config.yaml in the data dir)")
	pflag.StringVar(&f.dataDir, "data-dir", "", "directory for the database and default config (default: user config dir)")
	pflag.StringVarP(&f.listenAddr, "listen", "l", "", "host bridge address, overrides listen_addr")
	pflag.StringVar(&f.logLevel, "log-level", "", "log level, overrides log_level")
	pflag.BoolVar(&f.pretty, "pretty", false, "human readable log output")
	pflag.Parse()

	if err := run(f); err != nil {
		if errors.Is(err, platform.ErrUnsupported) {
			log.Fatal().Err(err).Msg("mediabridge: no media session support on this platform")
		}
		log.Fatal().Err(err).Msg("mediabridge: exiting")
	}
}

func run(f flags) error {
	paths, err := resolvePaths(f.dataDir)
	if err != nil {
		return err
	}
	configPath := f.configPath
	if configPath == "" {
		configPath = paths.ConfigPath
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if f.logLevel != "" {
		level = f.logLevel
	}
	if err := logging.Setup(level, f.pretty || cfg.LogPretty, os.Stderr); err != nil {
		return err
	}
	listenAddr := cfg.ListenAddr
	if f.listenAddr != "" {
		listenAddr = f.listenAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sqliteDB, err := db.Bootstrap(ctx, paths.DBPath)
	if err != nil {
		return err
	}
	defer sqliteDB.Close()

	repo := allowlist.NewRepository(sqliteDB)
	stored, err := loadAllowList(ctx, repo, cfg.AllowList)
	if err != nil {
		return err
	}
	allow := admission.NewAllowList(stored)

	source, err := newPlatformSource()
	if err != nil {
		return err
	}
	defer source.Close()

	commands := &hostCommands{}
	bridge := hostws.NewServer(commands, cfg.Timeouts.HostQuery)
	outbound := session.NewDispatcher(bridge, cfg.Queues.Outbound)
	inlet := session.NewInlet(cfg.Queues.Commands)
	commands.SessionService = NewSessionService(inlet, outbound)
	commands.SettingsService = NewSettingsService(repo, allow, inlet)

	var filter admission.Filter = allow
	if cfg.Admission == config.AdmissionHost {
		filter = admission.NewHostQuery(outbound, cfg.Timeouts.HostQuery)
	}

	hub := session.Hub{
		Outbound: outbound,
		Commands: inlet,
		Filter:   filter,
		Notifier: notify.NewDesktop("MediaBridge"),
	}
	if portal, err := newDesktopPortal(); err != nil {
		log.Warn().Err(err).Msg("mediabridge: desktop portal unavailable, file picker and theme events disabled")
	} else {
		defer portal.Close()
		hub.Picker = portal
		hub.Theme = portal
	}

	listener := session.NewListener(source, hub, session.Options{
		IdentityTimeout: cfg.Timeouts.Identity,
		CallTimeout:     cfg.Timeouts.Call,
		SeekDebounce:    cfg.SeekDebounce,
		TrackerInbox:    cfg.Queues.Tracker,
		ArtURLLimit:     cfg.ArtURLLimit,
		DisableAlbumArt: !cfg.AlbumArt,
	})

	reloader := newConfigReloader(cfg, commands)
	watcher := config.NewWatcher(configPath, 0, func(next *config.Config) {
		reloader.apply(ctx, next)
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := bridge.ListenAndServe(ctx, listenAddr); err != nil {
			log.Error().Err(err).Msg("mediabridge: host bridge stopped")
			cancel()
		}
	}()
	go func() {
		defer wg.Done()
		if err := watcher.Run(ctx); err != nil {
			log.Warn().Err(err).Msg("mediabridge: config watcher disabled")
		}
	}()

	log.Info().Str("config", configPath).Str("admission", cfg.Admission).Msg("mediabridge: starting")
	runErr := listener.Run(ctx)
	cancel()
	wg.Wait()

	if runErr != nil {
		return fmt.Errorf("session listener: %w", runErr)
	}
	log.Info().Msg("mediabridge: stopped")
	return nil
}

func resolvePaths(dataDir string) (config.Paths, error) {
	if dataDir != "" {
		return config.PathsIn(dataDir)
	}
	return config.ResolvePaths(appSlug)
}

// loadAllowList prefers the stored list; the config list only seeds an empty
// database.
func loadAllowList(ctx context.Context, repo *allowlist.Repository, seed []string) ([]string, error) {
	stored, err := repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(stored) > 0 || len(seed) == 0 {
		return stored, nil
	}

	ids := normalizeAppIDs(seed)
	if err := repo.Replace(ctx, ids); err != nil {
		return nil, err
	}
	return ids, nil
}
