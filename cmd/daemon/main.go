// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ManuGH/playbackd/internal/api"
	"github.com/ManuGH/playbackd/internal/cache"
	"github.com/ManuGH/playbackd/internal/cast"
	"github.com/ManuGH/playbackd/internal/catalog"
	"github.com/ManuGH/playbackd/internal/config"
	"github.com/ManuGH/playbackd/internal/daemon"
	"github.com/ManuGH/playbackd/internal/health"
	xglog "github.com/ManuGH/playbackd/internal/log"
	"github.com/ManuGH/playbackd/internal/player/engine"
	"github.com/ManuGH/playbackd/internal/player/model"
	"github.com/ManuGH/playbackd/internal/probe"
	"github.com/ManuGH/playbackd/internal/resume"
	"github.com/ManuGH/playbackd/internal/session"
	"github.com/ManuGH/playbackd/internal/stream"
	"github.com/ManuGH/playbackd/internal/subtitle"
	xgtls "github.com/ManuGH/playbackd/internal/tls"
)

var (
	version   = "v0.3.0"
	commit    = "none"
	buildDate = "unknown"
)

// maskURL removes user info from a URL string for safe logging.
func maskURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsed.User = nil
	return parsed.String()
}

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe defaults until the config is loaded.
	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: "playbackd",
		Version: version,
	})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Explicit --config wins; otherwise pick up ${PLAYBACKD_DATA_DIR}/config.yaml
	// when it exists.
	effectiveConfigPath := strings.TrimSpace(*configPath)
	if effectiveConfigPath == "" {
		dataDir := strings.TrimSpace(config.ParseString("PLAYBACKD_DATA_DIR", ""))
		if dataDir != "" {
			autoPath := filepath.Join(dataDir, "config.yaml")
			if _, err := os.Stat(autoPath); err == nil {
				effectiveConfigPath = autoPath
			}
		}
	}

	loader := config.NewLoader(effectiveConfigPath, version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	logCfg := xglog.Config{
		Level:   cfg.Log.Level,
		Service: "playbackd",
		Version: version,
	}
	if cfg.Log.Output == "stderr" {
		logCfg.Output = os.Stderr
	}
	xglog.Configure(logCfg)

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("cannot create data directory")
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("addr", cfg.Listen).
		Msg("starting playbackd")
	logger.Info().Msgf("→ Data dir: %s", cfg.DataDir)
	if cfg.Provider.BaseURL != "" {
		logger.Info().Msgf("→ Provider: %s (auth: %v)", maskURL(cfg.Provider.BaseURL), cfg.Provider.Username != "")
	}

	registry := buildRegistry(cfg)

	hints, err := catalog.Open(filepath.Join(cfg.DataDir, "catalog.db"))
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot open hint catalog")
	}
	defer func() { _ = hints.Close() }()
	if pruned, err := hints.Prune(ctx, time.Now().Add(-30*24*time.Hour)); err != nil {
		logger.Warn().Err(err).Msg("catalog prune failed")
	} else if pruned > 0 {
		logger.Info().Int64("pruned", pruned).Msg("stale catalog hints removed")
	}

	positions, err := resume.Open(filepath.Join(cfg.DataDir, "resume"))
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot open resume store")
	}
	defer func() { _ = positions.Close() }()

	var prober *probe.Prober
	if cfg.Probe.BaseURL != "" {
		var shared cache.Cache[probe.Result]
		if cfg.Redis.Addr != "" {
			shared, err = cache.NewRedis[probe.Result](cache.RedisConfig{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
				Prefix:   "probe",
			}, logger)
			if err != nil {
				logger.Fatal().Err(err).Msg("cannot connect probe cache to redis")
			}
		}
		prober = probe.NewProber(probe.NewClient(cfg.Probe.BaseURL, nil), probe.ProberOptions{
			TTL:    cfg.Probe.TTL,
			Shared: shared,
		})
		defer prober.Close()
		logger.Info().Msgf("→ Prober: %s (shared cache: %v)", maskURL(cfg.Probe.BaseURL), shared != nil)
	} else {
		logger.Warn().Msg("→ Prober: not configured, format detection disabled")
	}

	var subs *subtitle.Fetcher
	if cfg.Subtitles.BaseURL != "" {
		subs = subtitle.NewFetcher(cfg.Subtitles.BaseURL, nil)
		logger.Info().Msgf("→ Subtitles: %s (language: %s)", maskURL(cfg.Subtitles.BaseURL), cfg.Subtitles.Language)
	}

	var receiver cast.Receiver
	if cfg.Cast.ReceiverURL != "" {
		receiver = cast.NewHTTPReceiver(cfg.Cast.ReceiverURL, cfg.Cast.Timeout)
		logger.Info().Msgf("→ Cast receiver: %s", maskURL(cfg.Cast.ReceiverURL))
	}

	var streams *stream.Builder
	if cfg.Provider.BaseURL != "" {
		streams, err = stream.NewBuilder(cfg.Provider.BaseURL, cfg.Provider.Username, cfg.Provider.Password)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid provider configuration")
		}
	}

	sessions := session.NewManager(session.Config{
		IdleTTL:            cfg.Sessions.IdleTTL,
		SweepInterval:      cfg.Sessions.SweepInterval,
		ArtifactDir:        filepath.Join(cfg.DataDir, "subtitles"),
		ResumeSaveInterval: cfg.Sessions.ResumeSaveInterval,
		SubtitleLanguage:   cfg.Subtitles.Language,
	}, session.Deps{
		Registry: registry,
		Resume:   positions,
		Prober:   prober,
		Catalog:  hints,
		Subs:     subs,
		Receiver: receiver,
	})

	server := api.NewServer(sessions, prober, streams, api.Options{
		AllowedOrigins: cfg.API.AllowedOrigins,
		RateLimitRPM:   cfg.API.RateLimitRPM,
		TracingService: cfg.API.TracingService,
		Version:        version,
	})

	hm := server.HealthManager()
	hm.RegisterChecker(health.NewDirChecker("data_dir", cfg.DataDir))
	hm.RegisterChecker(health.NewEndpointChecker("prober", cfg.Probe.BaseURL, true))
	hm.RegisterChecker(health.NewEndpointChecker("cast_receiver", cfg.Cast.ReceiverURL, true))

	tlsCert, tlsKey := cfg.TLS.Cert, cfg.TLS.Key
	if tlsCert == "" && cfg.TLS.Auto {
		tlsCert, tlsKey, err = xgtls.EnsureCertificates(xgtls.Config{
			CertPath: filepath.Join(cfg.DataDir, "certs", "playbackd.crt"),
			KeyPath:  filepath.Join(cfg.DataDir, "certs", "playbackd.key"),
			Logger:   logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Str("event", "tls.ensure.failed").Msg("failed to ensure TLS certificates")
		}
	}

	holder := config.NewHolder(cfg, loader)

	app := daemon.New(daemon.Deps{
		Logger:    logger,
		Listen:    cfg.Listen,
		Handler:   server.Router(),
		Sessions:  sessions,
		CfgHolder: holder,
		TLSCert:   tlsCert,
		TLSKey:    tlsKey,
	})
	if err := app.Run(ctx); err != nil {
		logger.Fatal().Err(err).Str("event", "daemon.failed").Msg("daemon failed")
	}

	// Snapshot positions for operators before the store closes.
	exportPath := filepath.Join(cfg.DataDir, "resume-export.json")
	if err := positions.Export(exportPath); err != nil {
		logger.Warn().Err(err).Msg("resume export failed")
	}

	logger.Info().Msg("server exiting")
}

// buildRegistry probes the host for player binaries and registers a factory
// for each usable backend. The manifest engine runs in-process and is always
// registered.
func buildRegistry(cfg config.AppConfig) *engine.Registry {
	logger := xglog.WithComponent("daemon")
	reg := engine.NewRegistry()

	reg.Register(model.BackendHLS, func(model.Backend) (engine.Engine, error) {
		return engine.NewHLS(engine.HLSOptions{}), nil
	})

	mpvBin := cfg.Engines.MPVPath
	if mpvBin == "" {
		mpvBin = "mpv"
	}
	if engine.BinaryAvailable(mpvBin) {
		reg.Register(model.BackendMPV, func(model.Backend) (engine.Engine, error) {
			return engine.NewMPV(engine.MPVOptions{Bin: mpvBin, Video: cfg.Engines.Video}), nil
		})
	} else {
		logger.Warn().Str("bin", mpvBin).Msg("mpv not found, backend disabled")
	}

	vlcBin := cfg.Engines.VLCPath
	if vlcBin == "" {
		vlcBin = "vlc"
	}
	if engine.BinaryAvailable(vlcBin) {
		reg.Register(model.BackendVLC, func(model.Backend) (engine.Engine, error) {
			return engine.NewVLC(engine.VLCOptions{Bin: vlcBin}), nil
		})
	} else {
		logger.Warn().Str("bin", vlcBin).Msg("vlc not found, backend disabled")
	}

	return reg
}
