// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader resolves configuration in strict validated order: defaults are set,
// the YAML file (if any) merges over them, ENV overrides last, then the
// result is validated.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a loader. configPath may be empty for ENV-only setups.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// Load resolves the configuration with precedence ENV > file > defaults.
func (l *Loader) Load() (AppConfig, error) {
	cfg := defaults()
	cfg.Version = l.version

	if l.configPath != "" {
		if err := mergeFile(&cfg, l.configPath); err != nil {
			return AppConfig{}, err
		}
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func defaults() AppConfig {
	return AppConfig{
		Listen:  ":8089",
		DataDir: "/var/lib/playbackd",
		Log: LogConfig{
			Level:  "info",
			Output: "json",
		},
		Engines: EngineConfig{
			MPVPath: "mpv",
			VLCPath: "vlc",
		},
		Sessions: SessionConfig{
			IdleTTL:            30 * time.Minute,
			SweepInterval:      time.Minute,
			ResumeSaveInterval: 10 * time.Second,
		},
		Probe: ProbeConfig{
			TTL: time.Hour,
		},
		Subtitles: SubtitleConfig{
			Language: "en",
		},
		Cast: CastConfig{
			Timeout: 10 * time.Second,
		},
		API: APIConfig{
			RateLimitRPM: 600,
		},
	}
}

// mergeFile parses the YAML file strictly: unknown fields are errors so a
// typo never silently disables a setting.
func mergeFile(cfg *AppConfig, path string) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("config: unsupported format %s (only YAML supported)", ext)
	}

	// #nosec G304 -- config path is operator-provided via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *AppConfig) {
	cfg.Listen = ParseString("PLAYBACKD_LISTEN", cfg.Listen)
	cfg.DataDir = ParseString("PLAYBACKD_DATA_DIR", cfg.DataDir)

	cfg.Log.Level = ParseString("PLAYBACKD_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Output = ParseString("PLAYBACKD_LOG_OUTPUT", cfg.Log.Output)

	cfg.Provider.BaseURL = ParseString("PLAYBACKD_PROVIDER_URL", cfg.Provider.BaseURL)
	cfg.Provider.Username = ParseString("PLAYBACKD_PROVIDER_USERNAME", cfg.Provider.Username)
	cfg.Provider.Password = ParseString("PLAYBACKD_PROVIDER_PASSWORD", cfg.Provider.Password)

	cfg.Engines.MPVPath = ParseString("PLAYBACKD_MPV_PATH", cfg.Engines.MPVPath)
	cfg.Engines.VLCPath = ParseString("PLAYBACKD_VLC_PATH", cfg.Engines.VLCPath)
	cfg.Engines.Video = ParseBool("PLAYBACKD_VIDEO", cfg.Engines.Video)

	cfg.Sessions.IdleTTL = ParseDuration("PLAYBACKD_SESSION_IDLE_TTL", cfg.Sessions.IdleTTL)
	cfg.Sessions.SweepInterval = ParseDuration("PLAYBACKD_SESSION_SWEEP_INTERVAL", cfg.Sessions.SweepInterval)
	cfg.Sessions.ResumeSaveInterval = ParseDuration("PLAYBACKD_RESUME_SAVE_INTERVAL", cfg.Sessions.ResumeSaveInterval)

	cfg.Probe.BaseURL = ParseString("PLAYBACKD_PROBE_URL", cfg.Probe.BaseURL)
	cfg.Probe.TTL = ParseDuration("PLAYBACKD_PROBE_TTL", cfg.Probe.TTL)

	cfg.Subtitles.BaseURL = ParseString("PLAYBACKD_SUBTITLE_URL", cfg.Subtitles.BaseURL)
	cfg.Subtitles.Language = ParseString("PLAYBACKD_SUBTITLE_LANGUAGE", cfg.Subtitles.Language)

	cfg.Cast.ReceiverURL = ParseString("PLAYBACKD_CAST_RECEIVER_URL", cfg.Cast.ReceiverURL)
	cfg.Cast.Timeout = ParseDuration("PLAYBACKD_CAST_TIMEOUT", cfg.Cast.Timeout)

	cfg.Redis.Addr = ParseString("PLAYBACKD_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = ParseString("PLAYBACKD_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = ParseInt("PLAYBACKD_REDIS_DB", cfg.Redis.DB)

	if origins := ParseString("PLAYBACKD_API_ALLOWED_ORIGINS", ""); origins != "" {
		parts := strings.Split(origins, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		cfg.API.AllowedOrigins = out
	}
	cfg.API.RateLimitRPM = ParseInt("PLAYBACKD_API_RATE_LIMIT_RPM", cfg.API.RateLimitRPM)
	cfg.API.TracingService = ParseString("PLAYBACKD_TRACING_SERVICE", cfg.API.TracingService)

	cfg.TLS.Cert = ParseString("PLAYBACKD_TLS_CERT", cfg.TLS.Cert)
	cfg.TLS.Key = ParseString("PLAYBACKD_TLS_KEY", cfg.TLS.Key)
	cfg.TLS.Auto = ParseBool("PLAYBACKD_TLS_AUTO", cfg.TLS.Auto)
}
