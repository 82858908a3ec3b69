// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads daemon configuration with precedence
// ENV > YAML file > defaults.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// AppConfig is the fully resolved daemon configuration.
type AppConfig struct {
	Listen  string `yaml:"listen"`
	DataDir string `yaml:"dataDir"`
	Version string `yaml:"-"`

	Log       LogConfig      `yaml:"log"`
	Provider  ProviderConfig `yaml:"provider"`
	Engines   EngineConfig   `yaml:"engines"`
	Sessions  SessionConfig  `yaml:"sessions"`
	Probe     ProbeConfig    `yaml:"probe"`
	Subtitles SubtitleConfig `yaml:"subtitles"`
	Cast      CastConfig     `yaml:"cast"`
	Redis     RedisConfig    `yaml:"redis"`
	API       APIConfig      `yaml:"api"`
	TLS       TLSConfig      `yaml:"tls"`
}

// TLSConfig selects HTTPS serving. Cert and Key name an operator-provided
// pair; Auto generates a self-signed pair under the data directory instead.
type TLSConfig struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
	Auto bool   `yaml:"auto"`
}

// LogConfig controls the zerolog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Output string `yaml:"output"`
}

// ProviderConfig holds the stream provider credentials. Empty credentials
// disable URL construction; sessions must then carry full URLs.
type ProviderConfig struct {
	BaseURL  string `yaml:"baseUrl"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// EngineConfig controls which playback engines register.
type EngineConfig struct {
	MPVPath string `yaml:"mpvPath"`
	VLCPath string `yaml:"vlcPath"`
	// Video false runs mpv with a null video output, the normal mode for a
	// headless daemon.
	Video bool `yaml:"video"`
}

// SessionConfig tunes the session manager.
type SessionConfig struct {
	IdleTTL            time.Duration `yaml:"idleTtl"`
	SweepInterval      time.Duration `yaml:"sweepInterval"`
	ResumeSaveInterval time.Duration `yaml:"resumeSaveInterval"`
}

// ProbeConfig points at the remote track-detection service.
type ProbeConfig struct {
	BaseURL string        `yaml:"baseUrl"`
	TTL     time.Duration `yaml:"ttl"`
}

// SubtitleConfig points at the remote subtitle service.
type SubtitleConfig struct {
	BaseURL  string `yaml:"baseUrl"`
	Language string `yaml:"language"`
}

// CastConfig points at a cast receiver control endpoint.
type CastConfig struct {
	ReceiverURL string        `yaml:"receiverUrl"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RedisConfig enables the shared probe-result cache tier.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// APIConfig tunes the HTTP surface.
type APIConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
	RateLimitRPM   int      `yaml:"rateLimitRpm"`
	TracingService string   `yaml:"tracingService"`
}

// Validate rejects configurations the daemon cannot start with.
func (c *AppConfig) Validate() error {
	host, port, err := net.SplitHostPort(c.Listen)
	if err != nil {
		return fmt.Errorf("config: invalid listen address %q: %w", c.Listen, err)
	}
	_ = host
	if _, err := strconv.Atoi(port); err != nil {
		return fmt.Errorf("config: invalid listen port %q", port)
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: dataDir required")
	}
	for name, u := range map[string]string{
		"provider.baseUrl":  c.Provider.BaseURL,
		"probe.baseUrl":     c.Probe.BaseURL,
		"subtitles.baseUrl": c.Subtitles.BaseURL,
		"cast.receiverUrl":  c.Cast.ReceiverURL,
	} {
		if u == "" {
			continue
		}
		parsed, err := url.Parse(u)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return fmt.Errorf("config: %s must be an http(s) URL, got %q", name, u)
		}
	}
	if c.Sessions.IdleTTL < 0 {
		return fmt.Errorf("config: sessions.idleTtl must not be negative")
	}
	if c.API.RateLimitRPM < 0 {
		return fmt.Errorf("config: api.rateLimitRpm must not be negative")
	}
	if (c.TLS.Cert == "") != (c.TLS.Key == "") {
		return fmt.Errorf("config: tls.cert and tls.key must be set together")
	}
	return nil
}
