package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/TaranshG/Receipt-Identifer/internal/config"
	"github.com/TaranshG/Receipt-Identifer/internal/ledger"
	"github.com/TaranshG/Receipt-Identifer/internal/pipeline"
)

func offlineConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "proofs.json")
	cfg.AI.Enabled = false
	return cfg
}

func TestBuild_Offline(t *testing.T) {
	ctx := context.Background()
	a, err := Build(ctx, offlineConfig(t), Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()

	if a.Service.Network() != "offline" {
		t.Errorf("Network = %q, want offline", a.Service.Network())
	}

	_, err = a.Service.Certify(ctx, pipeline.CertifyInput{Fingerprint: "3f1c2a9b8d7e6f5a4b3c2d1e0f9a8b7c6d5e4f3a2b1c0d9e8f7a6b5c4d3e2f1a"})
	if !errors.Is(err, ErrLedgerDisabled) {
		t.Fatalf("Certify err = %v, want ErrLedgerDisabled", err)
	}
	var lerr *ledger.Error
	if !errors.As(err, &lerr) {
		t.Errorf("expected a labelled ledger error, got %T", err)
	}
}

func TestBuild_MissingKeypair(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Ledger.KeypairPath = filepath.Join(t.TempDir(), "missing.json")

	if _, err := Build(context.Background(), cfg, Options{Ledger: true}); err == nil {
		t.Fatal("expected an error for a missing keypair")
	}
}

func TestOpenStore(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StoreConfig
		wantErr bool
	}{
		{name: "memory", cfg: config.StoreConfig{Backend: config.BackendMemory}},
		{name: "file", cfg: config.StoreConfig{Backend: config.BackendFile, Path: filepath.Join(t.TempDir(), "p.json")}},
		{name: "unknown", cfg: config.StoreConfig{Backend: "redis"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := OpenStore(context.Background(), tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("OpenStore() error = %v, wantErr %v", err, tt.wantErr)
			}
			if store != nil {
				store.Close()
			}
		})
	}
}
