// Package config loads the connection-and-access core's configuration
// from a TOML or YAML file, then layers a .env file and IRCD_*
// environment variables over it, and validates the result, using
// caarlos0/env/v6 + joho/godotenv + go-playground/validator in place
// of a hand-rolled reflect-based env-tag walk.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/solanum-irc/solanum/ircd"
)

// ServerBlock is the top-level "serverinfo" identity block.
type ServerBlock struct {
	Name    string `yaml:"name" toml:"name" env:"IRCD_SERVER_NAME" validate:"required"`
	Desc    string `yaml:"description" toml:"description" env:"IRCD_SERVER_DESC"`
	Network string `yaml:"network" toml:"network" env:"IRCD_NETWORK" validate:"required"`
	SID     string `yaml:"sid" toml:"sid" env:"IRCD_SID" validate:"required,len=3"`

	ListenAddr string `yaml:"listen" toml:"listen" env:"IRCD_LISTEN" validate:"required"`
	TLSAddr    string `yaml:"tls_listen" toml:"tls_listen" env:"IRCD_TLS_LISTEN"`
	TLSCert    string `yaml:"tls_cert" toml:"tls_cert" env:"IRCD_TLS_CERT"`
	TLSKey     string `yaml:"tls_key" toml:"tls_key" env:"IRCD_TLS_KEY"`
}

// TimeoutsBlock holds the per-registration and per-connection timer
// durations.
type TimeoutsBlock struct {
	RegistrationSeconds int `yaml:"registration_seconds" toml:"registration_seconds" env:"IRCD_REGISTRATION_TIMEOUT" validate:"gte=1"`
	IdleSeconds         int `yaml:"idle_seconds" toml:"idle_seconds" env:"IRCD_IDLE_TIMEOUT" validate:"gte=1"`
	PingFrequencySeconds int `yaml:"ping_frequency_seconds" toml:"ping_frequency_seconds" env:"IRCD_PING_FREQUENCY" validate:"gte=1"`
}

// FloodBlock configures the rate-limit/flood knobs. ClientFloodMaxLines
// passes through the deliberately-preserved clamp quirk (documented in
// ircd/flood.go) when ircd sets up each client's flood state.
type FloodBlock struct {
	MaxRatelimitTokens  float64 `yaml:"max_ratelimit_tokens" toml:"max_ratelimit_tokens" env:"IRCD_MAX_RATELIMIT_TOKENS" validate:"gte=0"`
	ClientFloodMaxLines int     `yaml:"client_flood_max_lines" toml:"client_flood_max_lines" env:"IRCD_CLIENT_FLOOD_MAX_LINES"`
}

// QuarantineBlock is the "quarantine" configuration block.
type QuarantineBlock struct {
	AllowChannels []string `yaml:"allow_channels" toml:"allow_channels" env:"IRCD_QUARANTINE_ALLOW_CHANNELS" envSeparator:","`
	PartOnEntry   bool     `yaml:"part_on_entry" toml:"part_on_entry" env:"IRCD_QUARANTINE_PART_ON_ENTRY"`
}

// OIDCBlock configures delegated operator authentication as an
// alternative to a bcrypt password hash.
type OIDCBlock struct {
	IssuerURL string `yaml:"issuer_url" toml:"issuer_url" env:"IRCD_OIDC_ISSUER_URL"`
	ClientID  string `yaml:"client_id" toml:"client_id" env:"IRCD_OIDC_CLIENT_ID"`
}

// OperatorBlock is one "operator { }" entry; PasswordHash is a bcrypt
// hash, OIDCSubject binds this block to an OIDC identity instead of
// (or alongside) a password.
type OperatorBlock struct {
	Name         string          `yaml:"name" toml:"name" validate:"required"`
	PasswordHash string          `yaml:"password_hash" toml:"password_hash"`
	OIDCSubject  string          `yaml:"oidc_subject" toml:"oidc_subject"`
	Privileges   map[string]bool `yaml:"privileges" toml:"privileges"`
}

// BanDBBlock configures the external ban-database collaborator.
type BanDBBlock struct {
	DSN string `yaml:"dsn" toml:"dsn" env:"IRCD_BANDB_DSN"`
}

// MetricsBlock configures the /healthz and /metrics HTTP surface
// (explicitly not an admin GUI per the Non-goals).
type MetricsBlock struct {
	ListenAddr string `yaml:"listen" toml:"listen" env:"IRCD_METRICS_LISTEN"`
}

// PeeringBlock configures the grpc mesh transport (ircd/peering):
// where this server accepts inbound peer links, and which peer
// addresses to dial on startup.
type PeeringBlock struct {
	ListenAddr string   `yaml:"listen" toml:"listen" env:"IRCD_PEERING_LISTEN"`
	Peers      []string `yaml:"peers" toml:"peers" env:"IRCD_PEERING_PEERS" envSeparator:","`
}

// Config is the final populated struct graph the core consumes;
// parsing itself (this package) is ambient infrastructure layered in
// front of ircd.Config.
type Config struct {
	Server     ServerBlock      `yaml:"serverinfo" toml:"serverinfo"`
	Timeouts   TimeoutsBlock    `yaml:"timeouts" toml:"timeouts"`
	Flood      FloodBlock       `yaml:"flood" toml:"flood"`
	Quarantine QuarantineBlock  `yaml:"quarantine" toml:"quarantine"`
	OIDC       OIDCBlock        `yaml:"oidc" toml:"oidc"`
	Operators  []OperatorBlock  `yaml:"operators" toml:"operators"`
	BanDB      BanDBBlock       `yaml:"bandb" toml:"bandb"`
	Metrics    MetricsBlock     `yaml:"metrics" toml:"metrics"`
	Peering    PeeringBlock     `yaml:"peering" toml:"peering"`
	HideOpers  bool             `yaml:"hide_opers" toml:"hide_opers" env:"IRCD_HIDE_OPERS"`
}

// defaults applies baseline values before parsing the file, so a
// minimal config only needs to override what it cares about.
func defaults() *Config {
	cfg := &Config{}
	cfg.Server.Name = "irc.example.net"
	cfg.Server.Network = "ExampleNet"
	cfg.Server.SID = "00A"
	cfg.Server.ListenAddr = ":6667"
	cfg.Timeouts.RegistrationSeconds = 10
	cfg.Timeouts.IdleSeconds = 240
	cfg.Timeouts.PingFrequencySeconds = 120
	cfg.Flood.MaxRatelimitTokens = 10
	return cfg
}

// Load reads path (TOML or YAML, selected by extension, defaulting to
// YAML), overlays a .env file from the current working directory if
// present, then IRCD_*
// environment variables, then validates the result.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	switch {
	case strings.HasSuffix(path, ".toml"):
		err = toml.Unmarshal(data, cfg)
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		err = yaml.Unmarshal(data, cfg)
	default:
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	// godotenv.Load is a no-op (non-fatal) if the file doesn't exist.
	_ = godotenv.Load(".env")

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: environment overlay: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// RegistrationTimeout, IdleTimeout, and PingFrequency expose the
// Timeouts block as time.Duration, the shape ircd.Config wants.
func (c *Config) RegistrationTimeout() time.Duration {
	return time.Duration(c.Timeouts.RegistrationSeconds) * time.Second
}

func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.IdleSeconds) * time.Second
}

func (c *Config) PingFrequency() time.Duration {
	return time.Duration(c.Timeouts.PingFrequencySeconds) * time.Second
}

// ToIRCDConfig projects the loaded file/env-merged Config onto the
// ircd.Config struct graph the core consumes, rather than exposing
// config's own struct shape directly to ircd.
func (c *Config) ToIRCDConfig() *ircd.Config {
	return &ircd.Config{
		ServerName:  c.Server.Name,
		ServerDesc:  c.Server.Desc,
		NetworkName: c.Server.Network,
		SID:         c.Server.SID,

		ListenAddr: c.Server.ListenAddr,
		TLSAddr:    c.Server.TLSAddr,
		TLSCert:    c.Server.TLSCert,
		TLSKey:     c.Server.TLSKey,

		RegistrationTimeout: c.RegistrationTimeout(),
		IdleTimeout:         c.IdleTimeout(),
		PingFrequency:       c.PingFrequency(),

		MaxRatelimitTokens:  c.Flood.MaxRatelimitTokens,
		ClientFloodMaxLines: c.Flood.ClientFloodMaxLines,

		AllowChannels:    c.Quarantine.AllowChannels,
		PartOnQuarantine: c.Quarantine.PartOnEntry,

		HideOpers: c.HideOpers,
	}
}

// OperBlocks projects the loaded operator entries onto
// []*ircd.OperBlock for ircd.NewOperRegistry.
func (c *Config) OperBlocks() []*ircd.OperBlock {
	out := make([]*ircd.OperBlock, 0, len(c.Operators))
	for _, o := range c.Operators {
		out = append(out, &ircd.OperBlock{
			Name:         o.Name,
			PasswordHash: o.PasswordHash,
			OIDCSubject:  o.OIDCSubject,
			Privileges:   o.Privileges,
		})
	}
	return out
}
