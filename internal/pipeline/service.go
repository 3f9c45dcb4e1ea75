package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/TaranshG/Receipt-Identifer/internal/canon"
	"github.com/TaranshG/Receipt-Identifer/internal/extraction"
	infra "github.com/TaranshG/Receipt-Identifer/internal/infra/bigquery"
	"github.com/TaranshG/Receipt-Identifer/internal/ledger"
	"github.com/TaranshG/Receipt-Identifer/internal/logger"
	"github.com/TaranshG/Receipt-Identifer/internal/proofs"
	"github.com/TaranshG/Receipt-Identifer/internal/risk"
)

// Deps wires the service to its collaborators. Ledger, Store and Risk are
// required; the rest are optional.
type Deps struct {
	Ledger    Ledger
	Store     ProofStore
	Risk      *risk.Engine
	Extractor Extractor
	Images    ImageFetcher
	Archive   Archive
	Now       func() time.Time
}

// Service composes the analyze, certify and verify flows.
type Service struct {
	deps     Deps
	analysis *Pipeline
}

// NewService creates a Service.
func NewService(deps Deps) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Risk == nil {
		deps.Risk = risk.NewEngine("")
	}
	normalizer := extraction.Normalizer{Now: deps.Now}
	return &Service{
		deps:     deps,
		analysis: NewAnalysisPipeline(deps.Images, deps.Extractor, normalizer, deps.Risk),
	}
}

// Analyze runs Normalize → Canonicalize → RiskFusion for one receipt source.
func (s *Service) Analyze(ctx context.Context, in AnalyzeInput) (*AnalyzeResult, error) {
	source, err := sourceOf(in)
	if err != nil {
		return nil, fmt.Errorf("Analyze: %w", err)
	}

	state := &AnalysisState{
		Input:  in,
		Source: source,
		Result: AnalyzeResult{ID: uuid.New().String(), Source: source},
	}
	if err := s.analysis.Execute(ctx, state); err != nil {
		return nil, fmt.Errorf("Analyze: %w", err)
	}

	res := state.Result
	log := logger.FromContext(ctx)
	log.Info().
		Str("analysis_id", res.ID).
		Str("source", source).
		Str("fingerprint", res.Fingerprint).
		Str("risk_level", string(res.Risk.Level)).
		Int("risk_score", res.Assessment.Score).
		Msg("Receipt analyzed")

	s.archiveAnalysis(ctx, &res, in.ImageURI)
	return &res, nil
}

// Certify anchors a fingerprint and records it in the proof store. If the
// ledger accepted the memo but the store write failed, the result is
// returned alongside the error so the transaction id is not lost.
func (s *Service) Certify(ctx context.Context, in CertifyInput) (*CertifyResult, error) {
	log := logger.FromContext(ctx)

	text, fp, err := resolveCertifyInput(in)
	if err != nil {
		return nil, fmt.Errorf("Certify: %w", err)
	}

	cert, err := s.deps.Ledger.Certify(ctx, fp)
	if err != nil {
		return nil, fmt.Errorf("Certify: anchoring %s: %w", fp, err)
	}

	res := &CertifyResult{
		TxID:        cert.TxID,
		Fingerprint: cert.Fingerprint,
		Network:     cert.Network,
		Timestamp:   cert.Timestamp,
		FirstSeenTx: cert.TxID,
		FirstSeenAt: cert.Timestamp,
		SeenCount:   1,
	}

	up, err := s.deps.Store.Upsert(ctx, fp, cert.TxID, text, in.Summary)
	if err != nil {
		log.Error().
			Err(err).
			Str("fingerprint", fp).
			Str("tx_id", cert.TxID).
			Msg("Anchored on ledger but failed to record proof")
		return res, fmt.Errorf("Certify: recording proof for %s: %w", cert.TxID, err)
	}
	res.Duplicate = up.Duplicate
	res.FirstSeenTx = up.FirstSeenTx
	res.FirstSeenAt = up.FirstSeenAt
	res.SeenCount = up.SeenCount

	log.Info().
		Str("fingerprint", fp).
		Str("tx_id", cert.TxID).
		Bool("duplicate", up.Duplicate).
		Int("seen_count", up.SeenCount).
		Msg("Fingerprint certified")

	s.archiveCertification(ctx, res)
	return res, nil
}

// resolveCertifyInput returns the canonical text (possibly empty) and the
// fingerprint to anchor.
func resolveCertifyInput(in CertifyInput) (string, string, error) {
	text := strings.TrimSpace(in.CanonicalText)
	fp := canon.NormalizeFingerprint(in.Fingerprint)

	if text == "" && fp == "" {
		return "", "", fmt.Errorf("canonical_text or fingerprint is required: %w", ErrInvalidInput)
	}
	if fp != "" && !canon.ValidFingerprint(fp) {
		return "", "", fmt.Errorf("fingerprint must be 64 hex characters: %w", ErrInvalidInput)
	}
	if text == "" {
		return "", fp, nil
	}

	record, err := canon.Parse(text)
	if err != nil {
		return "", "", fmt.Errorf("canonical_text: %v: %w", err, ErrInvalidInput)
	}
	if canonical := canon.Canonicalize(record); canonical != text {
		return "", "", fmt.Errorf("canonical_text is not in canonical form: %w", ErrInvalidInput)
	}

	textFP := canon.Hash(text)
	if fp != "" && fp != textFP {
		return "", "", fmt.Errorf("fingerprint does not match canonical_text: %w", ErrInvalidInput)
	}
	return text, textFP, nil
}

// Verify checks txID against the presented receipt and, on mismatch,
// diffs the certified canonical text against the presented one.
func (s *Service) Verify(ctx context.Context, in VerifyInput) (*VerifyResult, error) {
	log := logger.FromContext(ctx)

	localText, localFP, err := resolveVerifyInput(in)
	if err != nil {
		return nil, fmt.Errorf("Verify: %w", err)
	}

	chain := s.deps.Ledger.Verify(ctx, strings.TrimSpace(in.TxID), localFP)
	res := &VerifyResult{
		Verified:           chain.Verified,
		Reason:             chain.Reason,
		Detail:             chain.Detail,
		Strategy:           chain.Strategy,
		BlockTime:          chain.BlockTime,
		ChainFingerprint:   chain.ChainFingerprint,
		LocalFingerprint:   localFP,
		LocalCanonicalText: localText,
	}

	if chain.ChainFingerprint != "" {
		rec, err := s.deps.Store.GetByHash(ctx, chain.ChainFingerprint)
		if err != nil {
			log.Warn().Err(err).Str("fingerprint", chain.ChainFingerprint).Msg("Proof lookup failed")
		} else if rec != nil {
			res.Proof = rec
			res.ChainCanonicalText = rec.CanonicalText
		}
	}
	if res.ChainCanonicalText == "" && chain.Reason != ledger.ReasonInvalidTransactionID {
		entry, err := s.deps.Store.GetByTx(ctx, strings.TrimSpace(in.TxID))
		if err != nil {
			log.Warn().Err(err).Str("tx_id", in.TxID).Msg("Transaction lookup failed")
		} else if entry != nil {
			res.ChainCanonicalText = entry.CanonicalText
		}
	}

	if res.LocalCanonicalText == "" {
		rec, err := s.deps.Store.GetByHash(ctx, localFP)
		if err != nil {
			log.Warn().Err(err).Str("fingerprint", localFP).Msg("Proof lookup failed")
		} else if rec != nil {
			res.LocalCanonicalText = rec.CanonicalText
		}
	}

	if !res.Verified && res.ChainCanonicalText != "" && res.LocalCanonicalText != "" {
		res.Diff = canon.Diff(res.ChainCanonicalText, res.LocalCanonicalText)
	}

	log.Info().
		Str("tx_id", in.TxID).
		Bool("verified", res.Verified).
		Str("reason", string(res.Reason)).
		Str("strategy", res.Strategy).
		Int("diff_fields", len(res.Diff)).
		Msg("Verification finished")

	return res, nil
}

// resolveVerifyInput returns the presented canonical text (possibly empty)
// and its fingerprint. Text that parses is re-canonicalized so cosmetic
// differences do not count; text that does not is hashed as given.
func resolveVerifyInput(in VerifyInput) (string, string, error) {
	if strings.TrimSpace(in.TxID) == "" {
		return "", "", fmt.Errorf("tx_id is required: %w", ErrInvalidInput)
	}

	text := strings.TrimSpace(in.CanonicalText)
	fp := canon.NormalizeFingerprint(in.Fingerprint)

	switch {
	case text != "":
		if record, err := canon.Parse(text); err == nil {
			text = canon.Canonicalize(record)
		}
		textFP := canon.Hash(text)
		if fp != "" && fp != textFP {
			return "", "", fmt.Errorf("fingerprint does not match canonical_text: %w", ErrInvalidInput)
		}
		return text, textFP, nil
	case fp != "":
		if !canon.ValidFingerprint(fp) {
			return "", "", fmt.Errorf("fingerprint must be 64 hex characters: %w", ErrInvalidInput)
		}
		return "", fp, nil
	default:
		return "", "", fmt.Errorf("canonical_text or fingerprint is required: %w", ErrInvalidInput)
	}
}

// Bundle returns the transaction entry and its proof record.
func (s *Service) Bundle(ctx context.Context, txID string) (*proofs.Bundle, error) {
	b, err := s.deps.Store.GetBundle(ctx, strings.TrimSpace(txID))
	if err != nil {
		return nil, fmt.Errorf("Bundle: %w", err)
	}
	return b, nil
}

// Proofs lists every proof record, most recently seen first.
func (s *Service) Proofs(ctx context.Context) ([]proofs.ProofRecord, error) {
	recs, err := s.deps.Store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("Proofs: %w", err)
	}
	return recs, nil
}

// Network reports the ledger network certifications go to.
func (s *Service) Network() string {
	return s.deps.Ledger.Network()
}

func (s *Service) archiveAnalysis(ctx context.Context, res *AnalyzeResult, imageURI string) {
	if s.deps.Archive == nil {
		return
	}
	if err := s.deps.Archive.InsertAnalysis(ctx, analysisRow(res, imageURI, s.deps.Now())); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().
			Err(err).
			Str("analysis_id", res.ID).
			Msg("Failed to archive analysis")
	}
}

func (s *Service) archiveCertification(ctx context.Context, res *CertifyResult) {
	if s.deps.Archive == nil {
		return
	}
	row := &infra.CertificationRow{
		CertificationID: uuid.New().String(),
		TxID:            res.TxID,
		Fingerprint:     res.Fingerprint,
		Network:         res.Network,
		Duplicate:       res.Duplicate,
		FirstSeenTx:     res.FirstSeenTx,
		SeenCount:       int64(res.SeenCount),
		CreatedTS:       s.deps.Now().UTC(),
	}
	if err := s.deps.Archive.InsertCertification(ctx, row); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().
			Err(err).
			Str("tx_id", res.TxID).
			Msg("Failed to archive certification")
	}
}

func analysisRow(res *AnalyzeResult, imageURI string, now time.Time) *infra.AnalysisRow {
	row := &infra.AnalysisRow{
		AnalysisID:    res.ID,
		Source:        res.Source,
		ImageURI:      imageURI,
		Merchant:      res.Record.Merchant,
		Currency:      res.Record.Currency,
		Total:         res.Record.Total.Rat(),
		Fingerprint:   res.Fingerprint,
		CanonicalText: res.CanonicalText,
		RiskScore:     int64(res.Assessment.Score),
		RiskLevel:     string(res.Risk.Level),
		CreatedTS:     now.UTC(),
	}

	if d := res.Record.Date; len(d) >= 10 {
		if date, err := civil.ParseDate(d[:10]); err == nil {
			row.ReceiptDate = bigquery.NullDate{Date: date, Valid: true}
		}
	}

	if ext := res.Extraction; ext != nil {
		row.AIVerdict = string(ext.Verdict)
		row.AIFraudScore = int64(ext.FraudScore)
		row.AIConfidence = ext.Confidence
	}

	if checks, err := json.Marshal(res.Assessment.Checks); err == nil {
		row.Checks = bigquery.NullJSON{JSONVal: string(checks), Valid: true}
	}
	return row
}

// IsInvalidInput reports whether err is a caller mistake.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
