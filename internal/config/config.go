// Package config loads service settings from an optional YAML file layered
// with RECEIPTID_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RECEIPTID_"

// Store backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigin   string        `yaml:"allowed_origin"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type LedgerConfig struct {
	Network            string        `yaml:"network"`
	RPCURL             string        `yaml:"rpc_url"`
	KeypairPath        string        `yaml:"keypair_path"`
	MinBalanceLamports uint64        `yaml:"min_balance_lamports"`
	TopUpLamports      uint64        `yaml:"topup_lamports"`
	ConfirmTimeout     time.Duration `yaml:"confirm_timeout"`
}

type StoreConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	DatabaseURL string `yaml:"database_url"`
}

type AIConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Model      string `yaml:"model"`
	APIVersion string `yaml:"api_version"`
}

type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	ProjectID string `yaml:"project_id"`
	Dataset   string `yaml:"dataset"`
}

type BlobsConfig struct {
	Bucket string `yaml:"bucket"`
}

type NotionConfig struct {
	Token      string `yaml:"token"`
	DatabaseID string `yaml:"database_id"`
}

type RiskConfig struct {
	PrimaryCurrency string `yaml:"primary_currency"`
}

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Store   StoreConfig   `yaml:"store"`
	AI      AIConfig      `yaml:"ai"`
	Archive ArchiveConfig `yaml:"archive"`
	Blobs   BlobsConfig   `yaml:"blobs"`
	Notion  NotionConfig  `yaml:"notion"`
	Risk    RiskConfig    `yaml:"risk"`
}

// Default returns the settings used when nothing is configured: devnet,
// a JSON proof file under ./data and the AI collaborator enabled.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			AllowedOrigin:   "*",
		},
		Log: LogConfig{Level: "info", Format: "console"},
		Ledger: LedgerConfig{
			Network:            "devnet",
			KeypairPath:        "keypair.json",
			MinBalanceLamports: 10_000_000,
			TopUpLamports:      1_000_000_000,
			ConfirmTimeout:     60 * time.Second,
		},
		Store: StoreConfig{
			Backend: BackendFile,
			Path:    "data/proofs.json",
		},
		AI: AIConfig{
			Enabled:    true,
			Model:      "gemini-2.5-flash",
			APIVersion: "v1",
		},
		Archive: ArchiveConfig{Dataset: "receipts"},
		Risk:    RiskConfig{PrimaryCurrency: "CAD"},
	}
}

// Load reads path (if non-empty), then applies environment overrides from
// getenv and validates the result. A missing file is an error only when
// the path was given explicitly.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if getenv == nil {
		getenv = os.Getenv
	}
	if path == "" {
		path = getenv(EnvPrefix + "CONFIG")
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return cfg, fmt.Errorf("Load: config file %s does not exist", path)
		case err != nil:
			return cfg, fmt.Errorf("Load: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("Load: parsing %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return cfg, fmt.Errorf("Load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("Load: %w", err)
	}
	return cfg, nil
}

// Validate rejects combinations that cannot start.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Store.Path == "" {
			return errors.New("store.path is required for the file backend")
		}
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			return errors.New("store.database_url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	switch c.Ledger.Network {
	case "devnet", "testnet", "mainnet-beta", "localnet":
	default:
		if c.Ledger.RPCURL == "" {
			return fmt.Errorf("ledger.rpc_url is required for network %q", c.Ledger.Network)
		}
	}

	if c.Archive.Enabled && c.Archive.ProjectID == "" {
		return errors.New("archive.project_id is required when the archive is enabled")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	return nil
}

type override struct {
	key   string
	apply func(string) error
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	overrides := []override{
		{"PORT", intVar(&cfg.Server.Port)},
		{"ALLOWED_ORIGIN", stringVar(&cfg.Server.AllowedOrigin)},
		{"LOG_LEVEL", stringVar(&cfg.Log.Level)},
		{"LOG_FORMAT", stringVar(&cfg.Log.Format)},
		{"NETWORK", stringVar(&cfg.Ledger.Network)},
		{"RPC_URL", stringVar(&cfg.Ledger.RPCURL)},
		{"KEYPAIR_PATH", stringVar(&cfg.Ledger.KeypairPath)},
		{"MIN_BALANCE_LAMPORTS", uintVar(&cfg.Ledger.MinBalanceLamports)},
		{"TOPUP_LAMPORTS", uintVar(&cfg.Ledger.TopUpLamports)},
		{"CONFIRM_TIMEOUT", durationVar(&cfg.Ledger.ConfirmTimeout)},
		{"STORE_BACKEND", stringVar(&cfg.Store.Backend)},
		{"STORE_PATH", stringVar(&cfg.Store.Path)},
		{"DATABASE_URL", stringVar(&cfg.Store.DatabaseURL)},
		{"AI_ENABLED", boolVar(&cfg.AI.Enabled)},
		{"AI_MODEL", stringVar(&cfg.AI.Model)},
		{"ARCHIVE_ENABLED", boolVar(&cfg.Archive.Enabled)},
		{"GCP_PROJECT", stringVar(&cfg.Archive.ProjectID)},
		{"BQ_DATASET", stringVar(&cfg.Archive.Dataset)},
		{"GCS_BUCKET", stringVar(&cfg.Blobs.Bucket)},
		{"NOTION_TOKEN", stringVar(&cfg.Notion.Token)},
		{"NOTION_DATABASE_ID", stringVar(&cfg.Notion.DatabaseID)},
		{"PRIMARY_CURRENCY", stringVar(&cfg.Risk.PrimaryCurrency)},
	}

	for _, o := range overrides {
		v := strings.TrimSpace(getenv(EnvPrefix + o.key))
		if v == "" {
			continue
		}
		if err := o.apply(v); err != nil {
			return fmt.Errorf("invalid %s%s=%q: %w", EnvPrefix, o.key, v, err)
		}
	}
	return nil
}

func stringVar(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func intVar(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func uintVar(dst *uint64) func(string) error {
	return func(v string) error {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func boolVar(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func durationVar(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}
