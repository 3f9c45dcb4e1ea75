package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "receiptid.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", envMap(nil))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ledger.Network != "devnet" {
		t.Errorf("Network = %q, want devnet", cfg.Ledger.Network)
	}
	if cfg.Store.Backend != BackendFile || cfg.Store.Path == "" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Risk.PrimaryCurrency != "CAD" {
		t.Errorf("PrimaryCurrency = %q", cfg.Risk.PrimaryCurrency)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
log:
  level: debug
  format: json
ledger:
  network: testnet
  confirm_timeout: 45s
  min_balance_lamports: 0
store:
  backend: memory
ai:
  enabled: false
risk:
  primary_currency: USD
`)

	cfg, err := Load(path, envMap(nil))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Log.Format != "json" || cfg.Log.Level != "debug" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Ledger.ConfirmTimeout != 45*time.Second {
		t.Errorf("ConfirmTimeout = %v", cfg.Ledger.ConfirmTimeout)
	}
	if cfg.Ledger.MinBalanceLamports != 0 {
		t.Errorf("MinBalanceLamports = %d, want 0", cfg.Ledger.MinBalanceLamports)
	}
	if cfg.Ledger.TopUpLamports != 1_000_000_000 {
		t.Errorf("TopUpLamports should keep its default, got %d", cfg.Ledger.TopUpLamports)
	}
	if cfg.AI.Enabled {
		t.Error("AI should be disabled")
	}
	if cfg.AI.Model != "gemini-2.5-flash" {
		t.Errorf("Model should keep its default, got %q", cfg.AI.Model)
	}
	if cfg.Risk.PrimaryCurrency != "USD" {
		t.Errorf("PrimaryCurrency = %q", cfg.Risk.PrimaryCurrency)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "store:\n  backend: memory\n")
	env := envMap(map[string]string{
		"RECEIPTID_STORE_BACKEND":   "postgres",
		"RECEIPTID_DATABASE_URL":    "postgres://localhost/receipts",
		"RECEIPTID_PORT":            "7000",
		"RECEIPTID_CONFIRM_TIMEOUT": "2m",
		"RECEIPTID_AI_ENABLED":      "false",
	})

	cfg, err := Load(path, env)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Backend != BackendPostgres || cfg.Store.DatabaseURL != "postgres://localhost/receipts" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Ledger.ConfirmTimeout != 2*time.Minute {
		t.Errorf("ConfirmTimeout = %v", cfg.Ledger.ConfirmTimeout)
	}
	if cfg.AI.Enabled {
		t.Error("AI should be disabled by env")
	}
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8181\n")
	cfg, err := Load("", envMap(map[string]string{"RECEIPTID_CONFIG": path}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8181 {
		t.Errorf("Port = %d, want 8181", cfg.Server.Port)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
	}{
		{name: "bad env int", env: map[string]string{"RECEIPTID_PORT": "eighty"}, wantErr: "RECEIPTID_PORT"},
		{name: "bad env bool", env: map[string]string{"RECEIPTID_AI_ENABLED": "maybe"}, wantErr: "RECEIPTID_AI_ENABLED"},
		{name: "unknown backend", yaml: "store:\n  backend: redis\n", wantErr: "unknown store backend"},
		{name: "postgres without url", yaml: "store:\n  backend: postgres\n", wantErr: "database_url"},
		{name: "custom network without rpc", yaml: "ledger:\n  network: private\n", wantErr: "rpc_url"},
		{name: "archive without project", yaml: "archive:\n  enabled: true\n", wantErr: "project_id"},
		{name: "malformed yaml", yaml: "server: [", wantErr: "parsing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := ""
			if tt.yaml != "" {
				path = writeConfig(t, tt.yaml)
			}
			_, err := Load(path, envMap(tt.env))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), envMap(nil))
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("expected missing-file error, got %v", err)
	}
}
