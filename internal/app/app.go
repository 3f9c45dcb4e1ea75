// Package app wires configured collaborators into a pipeline.Service for
// the commands under cmd/.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/TaranshG/Receipt-Identifer/internal/config"
	"github.com/TaranshG/Receipt-Identifer/internal/gcsuploader"
	infra "github.com/TaranshG/Receipt-Identifer/internal/infra/bigquery"
	"github.com/TaranshG/Receipt-Identifer/internal/ledger"
	"github.com/TaranshG/Receipt-Identifer/internal/ledger/solana"
	"github.com/TaranshG/Receipt-Identifer/internal/logger"
	"github.com/TaranshG/Receipt-Identifer/internal/pipeline"
	"github.com/TaranshG/Receipt-Identifer/internal/proofs"
	"github.com/TaranshG/Receipt-Identifer/internal/proofs/postgres"
	"github.com/TaranshG/Receipt-Identifer/internal/risk"
)

// ErrLedgerDisabled is returned by certify and verify when the app was
// built without a ledger.
var ErrLedgerDisabled = errors.New("ledger is not configured")

// Options selects which collaborators Build dials.
type Options struct {
	// Ledger loads the keypair and dials the RPC endpoint.
	Ledger bool
}

// App holds the service and everything that must be closed with it.
type App struct {
	Service *pipeline.Service
	Store   *proofs.Store
	Archive *infra.Archive
	Images  *gcsuploader.ImageStore

	closers []func() error
}

// Logger builds the process logger from cfg and installs it as the
// default for contexts without one.
func Logger(cfg config.Config) (zerolog.Logger, error) {
	log, err := logger.Configure(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return log, err
	}
	logger.SetDefault(log)
	return log, nil
}

// OpenStore opens the configured proof store backend.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (*proofs.Store, error) {
	var (
		backend proofs.Backend
		err     error
	)
	switch cfg.Backend {
	case config.BackendMemory:
		backend = proofs.NewMemoryBackend()
	case config.BackendFile:
		backend, err = proofs.OpenFileBackend(ctx, cfg.Path)
	case config.BackendPostgres:
		backend, err = postgres.Connect(ctx, cfg.DatabaseURL)
	default:
		err = fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("OpenStore: %w", err)
	}
	return proofs.NewStore(backend), nil
}

// Build dials every configured collaborator.
func Build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	log := logger.FromContext(ctx)
	a := &App{}

	store, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	deps := pipeline.Deps{
		Store: store,
		Risk:  risk.NewEngine(cfg.Risk.PrimaryCurrency),
	}

	if opts.Ledger {
		client, err := solana.New(solana.Config{
			Network:        cfg.Ledger.Network,
			RPCURL:         cfg.Ledger.RPCURL,
			KeypairPath:    cfg.Ledger.KeypairPath,
			ConfirmTimeout: cfg.Ledger.ConfirmTimeout,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("Build: %w", err)
		}
		log.Info().
			Str("network", client.Network()).
			Str("payer", client.Payer().String()).
			Msg("Ledger client ready")
		deps.Ledger = ledger.NewAnchor(client, ledger.Config{
			MinBalanceLamports: cfg.Ledger.MinBalanceLamports,
			TopUpLamports:      cfg.Ledger.TopUpLamports,
		})
	} else {
		deps.Ledger = disabledLedger{}
	}

	if cfg.AI.Enabled {
		extractor, err := pipeline.NewGeminiExtractor(ctx, cfg.AI.Model, cfg.AI.APIVersion)
		if err != nil {
			log.Warn().Err(err).Msg("AI collaborator unavailable; analysis will use rule checks only")
		} else {
			deps.Extractor = extractor
		}
	}

	if cfg.Blobs.Bucket != "" {
		images, err := gcsuploader.NewImageStore(ctx, cfg.Blobs.Bucket)
		if err != nil {
			log.Warn().Err(err).Msg("Blob storage unavailable; gs:// images are disabled")
		} else {
			a.Images = images
			deps.Images = images
			a.closers = append(a.closers, images.Close)
		}
	}

	if cfg.Archive.Enabled {
		archive, err := infra.NewArchive(ctx, cfg.Archive.ProjectID, cfg.Archive.Dataset)
		if err != nil {
			log.Warn().Err(err).Msg("Archive unavailable; analyses will not be recorded")
		} else {
			if err := archive.EnsureTables(ctx); err != nil {
				log.Warn().Err(err).Msg("Failed to ensure archive tables")
			}
			a.Archive = archive
			deps.Archive = archive
			a.closers = append(a.closers, archive.Close)
		}
	}

	a.Service = pipeline.NewService(deps)
	return a, nil
}

// Close releases collaborators in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// disabledLedger stands in when no keypair is loaded.
type disabledLedger struct{}

func (disabledLedger) Certify(ctx context.Context, fp string) (ledger.Certificate, error) {
	return ledger.Certificate{}, &ledger.Error{Reason: ledger.ReasonSubmissionFailed, Err: ErrLedgerDisabled}
}

func (disabledLedger) Verify(ctx context.Context, txID, expected string) ledger.VerifyResult {
	return ledger.VerifyResult{Reason: ledger.ReasonVerificationError, Detail: ErrLedgerDisabled.Error()}
}

func (disabledLedger) Network() string { return "offline" }
