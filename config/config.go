// Package config loads glyphmeshd's TOML configuration, auto-creating a
// default file on first run the same way the teacher's top-level config
// package does.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is glyphmeshd's full runtime configuration. Tunables mirror the
// design-level constants named in spec.md §9.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`

	StoreDriver string `toml:"StoreDriver"` // "sqlite" or "postgres"
	StoreDSN    string `toml:"StoreDSN"`

	AdminTokenSecret string `toml:"AdminTokenSecret"`

	OverlayPath string `toml:"OverlayPath"`
	CachePath   string `toml:"CachePath"`

	OTLPEndpoint string `toml:"OTLPEndpoint"`
	Environment  string `toml:"Environment"`

	WindowMs        int64 `toml:"WindowMs"`
	SeqPromoteCount int   `toml:"SeqPromoteCount"`
	SeqPromotePairs int   `toml:"SeqPromotePairs"`

	CompoundThreshold  uint32 `toml:"CompoundThreshold"`
	BaseThreshold      uint32 `toml:"BaseThreshold"`
	RejectionThreshold uint32 `toml:"RejectionThreshold"`
	CompoundExpiryMs   int64  `toml:"CompoundExpiryMs"`
	BaseExpiryMs       int64  `toml:"BaseExpiryMs"`
	CompoundMinVoteMs  int64  `toml:"CompoundMinVoteMs"`
	BaseMinVoteMs      int64  `toml:"BaseMinVoteMs"`

	MaxClients       int   `toml:"MaxClients"`
	HeartbeatMs      int64 `toml:"HeartbeatMs"`
	MaxFrameBytes    int   `toml:"MaxFrameBytes"`
	AgoraMaxFieldLen int   `toml:"AgoraMaxFieldLen"`
	RelayDeadlineMs  int64 `toml:"RelayDeadlineMs"`

	SendRatePerSec float64 `toml:"SendRatePerSec"`
	SendBurst      int     `toml:"SendBurst"`
}

// Load reads path, creating a default file if absent, then layers in
// environment-variable overrides for the handful of values that are usually
// secrets or deployment-specific (mirroring services/escrow-gateway and
// services/otc-gateway's env-override convention).
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		var derr error
		cfg, derr = createDefault(path)
		if derr != nil {
			return nil, derr
		}
	} else {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("GLYPHMESH_STORE_DSN")); v != "" {
		cfg.StoreDSN = v
	}
	if v := strings.TrimSpace(os.Getenv("GLYPHMESH_STORE_DRIVER")); v != "" {
		cfg.StoreDriver = v
	}
	if v := strings.TrimSpace(os.Getenv("GLYPHMESH_ADMIN_TOKEN_SECRET")); v != "" {
		cfg.AdminTokenSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("GLYPHMESH_OTLP_ENDPOINT")); v != "" {
		cfg.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("GLYPHMESH_ENV")); v != "" {
		cfg.Environment = v
	}
	if v := strings.TrimSpace(os.Getenv("GLYPHMESH_MAX_CLIENTS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxClients = n
		}
	}
}

// createDefault creates and saves a default configuration file with spec.md
// §9's documented constant values.
func createDefault(path string) (*Config, error) {
	const day = 24 * 60 * 60 * 1000
	const hour = 60 * 60 * 1000
	cfg := &Config{
		ListenAddress: ":8080",
		DataDir:       "./glyphmesh-data",
		StoreDriver:   "sqlite",
		StoreDSN:      "./glyphmesh-data/glyphmesh.db",
		OverlayPath:   "./glyphmesh-data/overlay.yaml",
		CachePath:     "./glyphmesh-data/sequence-cache",
		Environment:   "development",

		WindowMs:        30_000,
		SeqPromoteCount: 10,
		SeqPromotePairs: 3,

		CompoundThreshold:  3,
		BaseThreshold:      5,
		RejectionThreshold: 3,
		CompoundExpiryMs:   7 * day,
		BaseExpiryMs:       14 * day,
		CompoundMinVoteMs:  1 * hour,
		BaseMinVoteMs:      6 * hour,

		MaxClients:       100,
		HeartbeatMs:      30_000,
		MaxFrameBytes:    4096,
		AgoraMaxFieldLen: 200,
		RelayDeadlineMs:  10_000,

		SendRatePerSec: 5,
		SendBurst:      10,
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
