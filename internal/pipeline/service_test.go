package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mr-tron/base58"

	"github.com/TaranshG/Receipt-Identifer/internal/canon"
	"github.com/TaranshG/Receipt-Identifer/internal/domain"
	infra "github.com/TaranshG/Receipt-Identifer/internal/infra/bigquery"
	"github.com/TaranshG/Receipt-Identifer/internal/ledger"
	"github.com/TaranshG/Receipt-Identifer/internal/pipeline"
	"github.com/TaranshG/Receipt-Identifer/internal/proofs"
	"github.com/TaranshG/Receipt-Identifer/internal/risk"
)

const campusMartText = "merchant=campus mart\ndate=2026-02-07\ncurrency=CAD\nsubtotal=12.49\ntax=1.62\ntotal=14.11"

const campusMartAI = `Here is the analysis:
` + "```json" + `
{"merchant":"Campus Mart","date":"2026-02-07","currency":"cad","subtotal":12.49,"tax":1.62,"total":14.11,
 "verdict":"GENUINE","fraud_score":10,"confidence":0.9,"reasons":["Totals add up"]}
` + "```"

func fixedNow() time.Time {
	return time.Date(2026, 2, 10, 9, 30, 0, 0, time.Local)
}

func campusMart() domain.Record {
	return domain.Record{
		Merchant: "Campus Mart",
		Date:     "2026-02-07",
		Currency: "CAD",
		Subtotal: domain.NewAmount("12.49"),
		Tax:      domain.NewAmount("1.62"),
		Total:    domain.NewAmount("14.11"),
	}
}

// fakeChain is an in-memory ledger.Client that stores memos as compiled
// base58 instruction data.
type fakeChain struct {
	mu    sync.Mutex
	memos map[string][]byte
	next  byte
}

func newFakeChain() *fakeChain {
	return &fakeChain{memos: make(map[string][]byte)}
}

func (c *fakeChain) Submit(ctx context.Context, memo []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	id := base58.Encode(bytes.Repeat([]byte{c.next}, 64))
	c.memos[id] = append([]byte(nil), memo...)
	return id, nil
}

func (c *fakeChain) FetchTransaction(ctx context.Context, txID string) (*ledger.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	memo, ok := c.memos[txID]
	if !ok {
		return nil, ledger.ErrTransactionNotFound
	}
	return &ledger.Transaction{
		Signature: txID,
		Compiled: []ledger.Instruction{
			{ProgramID: ledger.MemoProgramID, Data: []byte(base58.Encode(memo))},
		},
	}, nil
}

func (c *fakeChain) Balance(ctx context.Context) (uint64, error)             { return 5_000_000_000, nil }
func (c *fakeChain) RequestTopUp(ctx context.Context, lamports uint64) error { return nil }
func (c *fakeChain) Network() string                                         { return "devnet" }

type mockExtractor struct {
	ExtractFromImageFunc func(ctx context.Context, data []byte, mimeType string) (string, error)
	AssessFieldsFunc     func(ctx context.Context, record domain.Record) (string, error)
}

func (m *mockExtractor) ExtractFromImage(ctx context.Context, data []byte, mimeType string) (string, error) {
	if m.ExtractFromImageFunc != nil {
		return m.ExtractFromImageFunc(ctx, data, mimeType)
	}
	return "", errors.New("not implemented")
}

func (m *mockExtractor) AssessFields(ctx context.Context, record domain.Record) (string, error) {
	if m.AssessFieldsFunc != nil {
		return m.AssessFieldsFunc(ctx, record)
	}
	return "", errors.New("not implemented")
}

type mockFetcher struct {
	FetchFunc func(ctx context.Context, uri string) ([]byte, string, error)
}

func (m *mockFetcher) Fetch(ctx context.Context, uri string) ([]byte, string, error) {
	return m.FetchFunc(ctx, uri)
}

type mockLedger struct {
	CertifyFunc func(ctx context.Context, fp string) (ledger.Certificate, error)
	VerifyFunc  func(ctx context.Context, txID, expected string) ledger.VerifyResult
}

func (m *mockLedger) Certify(ctx context.Context, fp string) (ledger.Certificate, error) {
	return m.CertifyFunc(ctx, fp)
}

func (m *mockLedger) Verify(ctx context.Context, txID, expected string) ledger.VerifyResult {
	return m.VerifyFunc(ctx, txID, expected)
}

func (m *mockLedger) Network() string { return "devnet" }

type recordingArchive struct {
	analyses       []*infra.AnalysisRow
	certifications []*infra.CertificationRow
	err            error
}

func (a *recordingArchive) InsertAnalysis(ctx context.Context, row *infra.AnalysisRow) error {
	a.analyses = append(a.analyses, row)
	return a.err
}

func (a *recordingArchive) InsertCertification(ctx context.Context, row *infra.CertificationRow) error {
	a.certifications = append(a.certifications, row)
	return a.err
}

type failingStore struct {
	*proofs.Store
}

func (f failingStore) Upsert(ctx context.Context, fp, txID, canonicalText string, summary *proofs.Summary) (proofs.UpsertResult, error) {
	return proofs.UpsertResult{}, errors.New("disk full")
}

func newService(deps pipeline.Deps) *pipeline.Service {
	if deps.Ledger == nil {
		deps.Ledger = ledger.NewAnchor(newFakeChain(), ledger.DefaultConfig)
	}
	if deps.Store == nil {
		deps.Store = proofs.NewStore(proofs.NewMemoryBackend())
	}
	deps.Risk = &risk.Engine{Now: fixedNow, PrimaryCurrency: "CAD"}
	deps.Now = fixedNow
	return pipeline.NewService(deps)
}

func TestAnalyze_RecordWithoutAI(t *testing.T) {
	rec := campusMart()
	svc := newService(pipeline.Deps{})

	res, err := svc.Analyze(context.Background(), pipeline.AnalyzeInput{Record: &rec})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Source != pipeline.SourceRecord {
		t.Errorf("Source = %q", res.Source)
	}
	if res.Extraction != nil {
		t.Errorf("Extraction = %+v, want nil without an AI collaborator", res.Extraction)
	}
	if res.CanonicalText != campusMartText {
		t.Errorf("CanonicalText = %q", res.CanonicalText)
	}
	if res.Fingerprint != canon.Hash(campusMartText) {
		t.Errorf("Fingerprint = %q", res.Fingerprint)
	}
	if res.Risk.Level != risk.LevelGood {
		t.Errorf("Risk = %+v, want good", res.Risk)
	}
	if res.ID == "" {
		t.Error("expected an analysis id")
	}
}

func TestAnalyze_RawAIOutput(t *testing.T) {
	svc := newService(pipeline.Deps{})

	res, err := svc.Analyze(context.Background(), pipeline.AnalyzeInput{RawAIOutput: campusMartAI})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Extraction == nil || res.Extraction.Verdict != domain.VerdictGenuine {
		t.Fatalf("Extraction = %+v", res.Extraction)
	}
	if res.Fingerprint != canon.Hash(campusMartText) {
		t.Errorf("AI record should canonicalize like the typed one, got %q", res.CanonicalText)
	}
	if res.Risk.Level != risk.LevelGood {
		t.Errorf("Risk = %+v", res.Risk)
	}
}

func TestAnalyze_GarbageIsUnreadableNotError(t *testing.T) {
	svc := newService(pipeline.Deps{})

	res, err := svc.Analyze(context.Background(), pipeline.AnalyzeInput{RawAIOutput: "I cannot read this receipt, sorry"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !res.Extraction.Unreadable() {
		t.Fatalf("Verdict = %s, want UNREADABLE", res.Extraction.Verdict)
	}
	if res.Risk.Level != risk.LevelBad {
		t.Errorf("Risk level = %s, want bad for an empty record", res.Risk.Level)
	}
}

func TestAnalyze_RecordKeepsUserFieldsOverAI(t *testing.T) {
	rec := campusMart()
	ext := &mockExtractor{
		AssessFieldsFunc: func(ctx context.Context, record domain.Record) (string, error) {
			if record.Merchant != "Campus Mart" {
				t.Errorf("AssessFields got %+v", record)
			}
			return `{"merchant":"Other Shop","total":99,"verdict":"FRAUDULENT","fraud_score":95,"reasons":["Edited total"]}`, nil
		},
	}
	svc := newService(pipeline.Deps{Extractor: ext})

	res, err := svc.Analyze(context.Background(), pipeline.AnalyzeInput{Record: &rec})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Record.Merchant != "Campus Mart" {
		t.Errorf("Record.Merchant = %q, want the caller's value", res.Record.Merchant)
	}
	if res.Extraction.Verdict != domain.VerdictFake {
		t.Errorf("Verdict = %s, want FAKE", res.Extraction.Verdict)
	}
	if res.Risk.Level != risk.LevelBad {
		t.Errorf("Risk level = %s, want bad when the AI says FAKE", res.Risk.Level)
	}
}

func TestAnalyze_ModelErrorsDegrade(t *testing.T) {
	ext := &mockExtractor{
		ExtractFromImageFunc: func(ctx context.Context, data []byte, mimeType string) (string, error) {
			return "", errors.New("deadline exceeded")
		},
	}
	svc := newService(pipeline.Deps{Extractor: ext})

	res, err := svc.Analyze(context.Background(), pipeline.AnalyzeInput{Image: []byte{0xff, 0xd8}, MIMEType: "image/jpeg"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !res.Extraction.Unreadable() {
		t.Errorf("Verdict = %s, want UNREADABLE", res.Extraction.Verdict)
	}
}

func TestAnalyze_ImageURI(t *testing.T) {
	fetcher := &mockFetcher{
		FetchFunc: func(ctx context.Context, uri string) ([]byte, string, error) {
			if uri != "gs://receipts/r1.png" {
				t.Errorf("Fetch(%q)", uri)
			}
			return []byte("png-bytes"), "image/png", nil
		},
	}
	ext := &mockExtractor{
		ExtractFromImageFunc: func(ctx context.Context, data []byte, mimeType string) (string, error) {
			if string(data) != "png-bytes" || mimeType != "image/png" {
				t.Errorf("ExtractFromImage(%q, %q)", data, mimeType)
			}
			return campusMartAI, nil
		},
	}
	archive := &recordingArchive{}
	svc := newService(pipeline.Deps{Extractor: ext, Images: fetcher, Archive: archive})

	res, err := svc.Analyze(context.Background(), pipeline.AnalyzeInput{ImageURI: "gs://receipts/r1.png"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Fingerprint != canon.Hash(campusMartText) {
		t.Errorf("CanonicalText = %q", res.CanonicalText)
	}

	if len(archive.analyses) != 1 {
		t.Fatalf("archived %d analyses, want 1", len(archive.analyses))
	}
	row := archive.analyses[0]
	if row.ImageURI != "gs://receipts/r1.png" || row.Source != pipeline.SourceImageURI {
		t.Errorf("row = %+v", row)
	}
	if !row.ReceiptDate.Valid || row.ReceiptDate.Date.String() != "2026-02-07" {
		t.Errorf("ReceiptDate = %+v", row.ReceiptDate)
	}
	if row.Total == nil || row.Total.FloatString(2) != "14.11" {
		t.Errorf("Total = %v", row.Total)
	}
	if !row.Checks.Valid || !strings.Contains(row.Checks.JSONVal, "arithmetic") {
		t.Errorf("Checks = %+v", row.Checks)
	}
	if row.AIVerdict != "GENUINE" {
		t.Errorf("AIVerdict = %q", row.AIVerdict)
	}
}

func TestAnalyze_ArchiveFailureIsNotFatal(t *testing.T) {
	rec := campusMart()
	svc := newService(pipeline.Deps{Archive: &recordingArchive{err: errors.New("quota exceeded")}})

	if _, err := svc.Analyze(context.Background(), pipeline.AnalyzeInput{Record: &rec}); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
}

func TestAnalyze_InvalidInput(t *testing.T) {
	rec := campusMart()
	tests := []struct {
		name string
		in   pipeline.AnalyzeInput
		deps pipeline.Deps
	}{
		{name: "no source", in: pipeline.AnalyzeInput{}},
		{name: "two sources", in: pipeline.AnalyzeInput{Record: &rec, RawAIOutput: "{}"}},
		{name: "image without mime type", in: pipeline.AnalyzeInput{Image: []byte{1}}},
		{name: "image without AI", in: pipeline.AnalyzeInput{Image: []byte{1}, MIMEType: "image/png"}},
		{name: "uri without blob store", in: pipeline.AnalyzeInput{ImageURI: "gs://b/o.png"}, deps: pipeline.Deps{Extractor: &mockExtractor{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newService(tt.deps).Analyze(context.Background(), tt.in)
			if !errors.Is(err, pipeline.ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestCertifyVerify_EndToEnd(t *testing.T) {
	ctx := context.Background()
	archive := &recordingArchive{}
	svc := newService(pipeline.Deps{Archive: archive})

	first, err := svc.Certify(ctx, pipeline.CertifyInput{CanonicalText: campusMartText})
	if err != nil {
		t.Fatalf("Certify: %v", err)
	}
	if first.Duplicate || first.SeenCount != 1 || first.FirstSeenTx != first.TxID {
		t.Errorf("first certification = %+v", first)
	}
	if first.Network != "devnet" {
		t.Errorf("Network = %q", first.Network)
	}

	second, err := svc.Certify(ctx, pipeline.CertifyInput{Fingerprint: strings.ToUpper(canon.Hash(campusMartText))})
	if err != nil {
		t.Fatalf("Certify again: %v", err)
	}
	if !second.Duplicate || second.SeenCount != 2 || second.FirstSeenTx != first.TxID {
		t.Errorf("second certification = %+v", second)
	}
	if second.TxID == first.TxID {
		t.Error("each certification gets its own transaction")
	}
	if len(archive.certifications) != 2 || !archive.certifications[1].Duplicate {
		t.Errorf("archived certifications = %+v", archive.certifications)
	}

	ok, err := svc.Verify(ctx, pipeline.VerifyInput{CanonicalText: campusMartText, TxID: first.TxID})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok.Verified || ok.Strategy != ledger.StrategyCompiledBase58 {
		t.Errorf("Verify = %+v", ok)
	}
	if len(ok.Diff) != 0 {
		t.Errorf("verified receipt has diff %+v", ok.Diff)
	}
	if ok.Proof == nil || ok.Proof.SeenCount != 2 {
		t.Errorf("Proof = %+v", ok.Proof)
	}

	tampered := strings.Replace(campusMartText, "total=14.11", "total=19.11", 1)
	bad, err := svc.Verify(ctx, pipeline.VerifyInput{CanonicalText: tampered, TxID: first.TxID})
	if err != nil {
		t.Fatalf("Verify tampered: %v", err)
	}
	if bad.Verified || bad.Reason != ledger.ReasonHashMismatch {
		t.Fatalf("Verify tampered = %+v", bad)
	}
	if bad.ChainFingerprint != canon.Hash(campusMartText) {
		t.Errorf("ChainFingerprint = %q", bad.ChainFingerprint)
	}
	if bad.ChainCanonicalText != campusMartText {
		t.Errorf("ChainCanonicalText = %q", bad.ChainCanonicalText)
	}
	if len(bad.Diff) != 1 || bad.Diff[0].Field != "total" || bad.Diff[0].Certified != "14.11" || bad.Diff[0].Presented != "19.11" {
		t.Errorf("Diff = %+v", bad.Diff)
	}

	bundle, err := svc.Bundle(ctx, first.TxID)
	if err != nil {
		t.Fatalf("Bundle: %v", err)
	}
	if bundle.Proof == nil || bundle.Tx.Fingerprint != canon.Hash(campusMartText) {
		t.Errorf("Bundle = %+v", bundle)
	}

	all, err := svc.Proofs(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("Proofs = %v, %v", all, err)
	}
}

func TestVerify_UnknownTransaction(t *testing.T) {
	svc := newService(pipeline.Deps{})
	unknown := base58.Encode(bytes.Repeat([]byte{42}, 64))

	res, err := svc.Verify(context.Background(), pipeline.VerifyInput{Fingerprint: canon.Hash(campusMartText), TxID: unknown})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Verified || res.Reason != ledger.ReasonTransactionNotFound {
		t.Errorf("Verify = %+v", res)
	}
	if res.Diff != nil {
		t.Errorf("Diff = %+v, want none", res.Diff)
	}
}

func TestVerify_InvalidInput(t *testing.T) {
	svc := newService(pipeline.Deps{})
	tests := []pipeline.VerifyInput{
		{CanonicalText: campusMartText},
		{TxID: "abc"},
		{Fingerprint: "xyz", TxID: "abc"},
		{CanonicalText: campusMartText, Fingerprint: strings.Repeat("0", 64), TxID: "abc"},
	}
	for i, in := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			if _, err := svc.Verify(context.Background(), in); !errors.Is(err, pipeline.ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestCertify_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		in   pipeline.CertifyInput
	}{
		{name: "empty", in: pipeline.CertifyInput{}},
		{name: "bad fingerprint", in: pipeline.CertifyInput{Fingerprint: "not-hex"}},
		{name: "not canonical", in: pipeline.CertifyInput{CanonicalText: "merchant=Campus Mart\ndate=2026-02-07\ncurrency=CAD\nsubtotal=12.49\ntax=1.62\ntotal=14.11"}},
		{name: "unparsable text", in: pipeline.CertifyInput{CanonicalText: "this is not a receipt"}},
		{name: "mismatched fingerprint", in: pipeline.CertifyInput{CanonicalText: campusMartText, Fingerprint: strings.Repeat("a", 64)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := newFakeChain()
			svc := newService(pipeline.Deps{Ledger: ledger.NewAnchor(chain, ledger.DefaultConfig)})
			_, err := svc.Certify(context.Background(), tt.in)
			if !errors.Is(err, pipeline.ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
			if len(chain.memos) != 0 {
				t.Error("nothing should be submitted for invalid input")
			}
		})
	}
}

func TestCertify_LedgerErrorKeepsReason(t *testing.T) {
	store := proofs.NewStore(proofs.NewMemoryBackend())
	l := &mockLedger{
		CertifyFunc: func(ctx context.Context, fp string) (ledger.Certificate, error) {
			return ledger.Certificate{}, &ledger.Error{Reason: ledger.ReasonInsufficientFunds, Err: errors.New("insufficient lamports")}
		},
	}
	svc := newService(pipeline.Deps{Ledger: l, Store: store})

	_, err := svc.Certify(context.Background(), pipeline.CertifyInput{CanonicalText: campusMartText})
	var lerr *ledger.Error
	if !errors.As(err, &lerr) || lerr.Reason != ledger.ReasonInsufficientFunds {
		t.Fatalf("err = %v, want INSUFFICIENT_FUNDS", err)
	}
	if all, _ := store.ListAll(context.Background()); len(all) != 0 {
		t.Errorf("store has %d records after a failed anchor", len(all))
	}
}

func TestCertify_StoreFailureStillReturnsTx(t *testing.T) {
	store := failingStore{proofs.NewStore(proofs.NewMemoryBackend())}
	svc := newService(pipeline.Deps{Store: store})

	res, err := svc.Certify(context.Background(), pipeline.CertifyInput{CanonicalText: campusMartText})
	if err == nil {
		t.Fatal("expected an error")
	}
	if res == nil || !ledger.ValidTxID(res.TxID) {
		t.Fatalf("result = %+v, want the anchored tx id", res)
	}
}

func TestBundle_NotFound(t *testing.T) {
	svc := newService(pipeline.Deps{})
	if _, err := svc.Bundle(context.Background(), "missing"); !errors.Is(err, proofs.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAnalyzeResult_Summary(t *testing.T) {
	rec := campusMart()
	svc := newService(pipeline.Deps{})
	res, err := svc.Analyze(context.Background(), pipeline.AnalyzeInput{Record: &rec})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	s := res.Summary()
	if s.Merchant != "Campus Mart" || s.Total.String() != "14.11" || s.RiskLevel != "good" || s.AIVerdict != "" {
		t.Errorf("Summary = %+v", s)
	}
}
