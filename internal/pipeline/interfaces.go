package pipeline

import (
	"context"

	"github.com/TaranshG/Receipt-Identifer/internal/domain"
	infra "github.com/TaranshG/Receipt-Identifer/internal/infra/bigquery"
	"github.com/TaranshG/Receipt-Identifer/internal/ledger"
	"github.com/TaranshG/Receipt-Identifer/internal/proofs"
)

// Extractor provides an interface for the AI collaborator.
// Both methods return the model's raw text; parsing is left to the
// extraction package so every fault degrades the same way.
type Extractor interface {
	// ExtractFromImage reads receipt fields and a fraud judgement from an image.
	ExtractFromImage(ctx context.Context, data []byte, mimeType string) (string, error)

	// AssessFields judges already-extracted fields.
	AssessFields(ctx context.Context, record domain.Record) (string, error)
}

// ImageFetcher loads receipt images referenced by URI.
type ImageFetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, string, error)
}

// Ledger is the anchoring surface used by the service. *ledger.Anchor
// implements it.
type Ledger interface {
	Certify(ctx context.Context, fp string) (ledger.Certificate, error)
	Verify(ctx context.Context, txID, expected string) ledger.VerifyResult
	Network() string
}

// ProofStore is implemented by *proofs.Store.
type ProofStore interface {
	Upsert(ctx context.Context, fp, txID, canonicalText string, summary *proofs.Summary) (proofs.UpsertResult, error)
	GetByHash(ctx context.Context, fp string) (*proofs.ProofRecord, error)
	GetByTx(ctx context.Context, txID string) (*proofs.TxEntry, error)
	GetBundle(ctx context.Context, txID string) (*proofs.Bundle, error)
	ListAll(ctx context.Context) ([]proofs.ProofRecord, error)
}

// Archive receives a best-effort copy of every analysis and certification.
type Archive interface {
	InsertAnalysis(ctx context.Context, row *infra.AnalysisRow) error
	InsertCertification(ctx context.Context, row *infra.CertificationRow) error
}
