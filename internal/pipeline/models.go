package pipeline

import (
	"errors"
	"time"

	"github.com/TaranshG/Receipt-Identifer/internal/canon"
	"github.com/TaranshG/Receipt-Identifer/internal/domain"
	"github.com/TaranshG/Receipt-Identifer/internal/ledger"
	"github.com/TaranshG/Receipt-Identifer/internal/proofs"
	"github.com/TaranshG/Receipt-Identifer/internal/risk"
)

// ErrInvalidInput marks caller mistakes. Errors wrapping it map to HTTP 400.
var ErrInvalidInput = errors.New("invalid input")

// AnalyzeInput carries exactly one receipt source.
type AnalyzeInput struct {
	Record      *domain.Record `json:"record,omitempty"`
	RawAIOutput string         `json:"raw_ai_output,omitempty"`
	Image       []byte         `json:"image,omitempty"`
	MIMEType    string         `json:"mime_type,omitempty"`
	ImageURI    string         `json:"image_uri,omitempty"`
}

// AnalyzeResult is the outcome of Normalize → Canonicalize → RiskFusion.
type AnalyzeResult struct {
	ID            string             `json:"id"`
	Source        string             `json:"source"`
	Extraction    *domain.Extraction `json:"extraction,omitempty"`
	Record        domain.Record      `json:"record"`
	Assessment    risk.Assessment    `json:"assessment"`
	Risk          risk.FinalRisk     `json:"risk"`
	CanonicalText string             `json:"canonical_text"`
	Fingerprint   string             `json:"fingerprint"`
}

// Verdict is the AI verdict, or "" when no AI opinion was taken.
func (r AnalyzeResult) Verdict() domain.Verdict {
	if r.Extraction == nil {
		return ""
	}
	return r.Extraction.Verdict
}

// Summary is the display metadata stored with a certification.
func (r AnalyzeResult) Summary() *proofs.Summary {
	return &proofs.Summary{
		Merchant:  r.Record.Merchant,
		Date:      r.Record.Date,
		Currency:  r.Record.Currency,
		Total:     r.Record.Total,
		RiskLevel: string(r.Risk.Level),
		RiskScore: r.Assessment.Score,
		AIVerdict: string(r.Verdict()),
	}
}

// CertifyInput names the receipt by canonical text or fingerprint. When
// both are present they must agree.
type CertifyInput struct {
	CanonicalText string          `json:"canonical_text,omitempty"`
	Fingerprint   string          `json:"fingerprint,omitempty"`
	Summary       *proofs.Summary `json:"summary,omitempty"`
}

type CertifyResult struct {
	TxID        string    `json:"tx_id"`
	Fingerprint string    `json:"fingerprint"`
	Network     string    `json:"network"`
	Timestamp   time.Time `json:"timestamp"`
	Duplicate   bool      `json:"duplicate"`
	FirstSeenTx string    `json:"first_seen_tx"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	SeenCount   int       `json:"seen_count"`
}

// VerifyInput names the presented receipt and the transaction to check.
type VerifyInput struct {
	CanonicalText string `json:"canonical_text,omitempty"`
	Fingerprint   string `json:"fingerprint,omitempty"`
	TxID          string `json:"tx_id"`
}

type VerifyResult struct {
	Verified           bool                `json:"verified"`
	Reason             ledger.Reason       `json:"reason,omitempty"`
	Detail             string              `json:"detail,omitempty"`
	Strategy           string              `json:"strategy,omitempty"`
	BlockTime          *time.Time          `json:"block_time,omitempty"`
	ChainFingerprint   string              `json:"chain_fingerprint,omitempty"`
	LocalFingerprint   string              `json:"local_fingerprint"`
	ChainCanonicalText string              `json:"chain_canonical_text,omitempty"`
	LocalCanonicalText string              `json:"local_canonical_text,omitempty"`
	Diff               []canon.FieldDiff   `json:"diff,omitempty"`
	Proof              *proofs.ProofRecord `json:"proof,omitempty"`
}
