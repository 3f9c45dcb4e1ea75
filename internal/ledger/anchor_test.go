package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mr-tron/base58"
)

const testFP = "3f1c2a9b8d7e6f5a4b3c2d1e0f9a8b7c6d5e4f3a2b1c0d9e8f7a6b5c4d3e2f1a"

var testTxID = base58.Encode(bytes.Repeat([]byte{7}, signatureLen))

// mockClient implements Client with overridable funcs.
type mockClient struct {
	SubmitFunc       func(ctx context.Context, memo []byte) (string, error)
	FetchFunc        func(ctx context.Context, txID string) (*Transaction, error)
	BalanceFunc      func(ctx context.Context) (uint64, error)
	RequestTopUpFunc func(ctx context.Context, lamports uint64) error
	network          string

	submitted [][]byte
	topUps    []uint64
}

func (m *mockClient) Submit(ctx context.Context, memo []byte) (string, error) {
	m.submitted = append(m.submitted, memo)
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, memo)
	}
	return testTxID, nil
}

func (m *mockClient) FetchTransaction(ctx context.Context, txID string) (*Transaction, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, txID)
	}
	return nil, ErrTransactionNotFound
}

func (m *mockClient) Balance(ctx context.Context) (uint64, error) {
	if m.BalanceFunc != nil {
		return m.BalanceFunc(ctx)
	}
	return 5_000_000_000, nil
}

func (m *mockClient) RequestTopUp(ctx context.Context, lamports uint64) error {
	m.topUps = append(m.topUps, lamports)
	if m.RequestTopUpFunc != nil {
		return m.RequestTopUpFunc(ctx, lamports)
	}
	return nil
}

func (m *mockClient) Network() string {
	if m.network == "" {
		return "devnet"
	}
	return m.network
}

func withTx(tx *Transaction) *mockClient {
	return &mockClient{FetchFunc: func(ctx context.Context, txID string) (*Transaction, error) {
		return tx, nil
	}}
}

func TestFormatAndParseMemo(t *testing.T) {
	memo := FormatMemo(strings.ToUpper(testFP))
	if memo != "RECEIPTID:v1:HASH:"+testFP {
		t.Fatalf("FormatMemo() = %q", memo)
	}
	m, ok := ParseMemo(memo)
	if !ok || m.Protocol != Protocol || m.Version != Version || m.Fingerprint != testFP {
		t.Errorf("ParseMemo() = %+v, %v", m, ok)
	}
	if m, ok := ParseMemo("RECEIPTID:v2:HASH:" + testFP); !ok || m.Version != "v2" {
		t.Errorf("ParseMemo(v2) = %+v, %v, want a later version accepted", m, ok)
	}

	for _, bad := range []string{
		"",
		"hello world",
		"RECEIPTID:v1:HASH:" + testFP[:63],
		"receiptid:v1:HASH:" + testFP,
		"RECEIPTID:1:HASH:" + testFP,
		"RECEIPTID:v1:HASH:" + testFP + "00",
		"SOMEONEELSE:v9:HASH:" + testFP,
		"RECEIPTIDX:v1:HASH:" + testFP,
	} {
		if _, ok := ParseMemo(bad); ok {
			t.Errorf("ParseMemo(%q) accepted", bad)
		}
	}
}

func TestValidTxID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{testTxID, true},
		{"", false},
		{"not-base58-0OIl", false},
		{base58.Encode([]byte("short")), false},
		{" " + testTxID, false},
	}
	for _, tt := range tests {
		if got := ValidTxID(tt.id); got != tt.want {
			t.Errorf("ValidTxID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestCertify(t *testing.T) {
	client := &mockClient{}
	a := NewAnchor(client, DefaultConfig)

	cert, err := a.Certify(context.Background(), strings.ToUpper(testFP))
	if err != nil {
		t.Fatalf("Certify() error = %v", err)
	}
	if cert.TxID != testTxID || cert.Fingerprint != testFP {
		t.Errorf("Certify() = %+v", cert)
	}
	if cert.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
	if len(client.submitted) != 1 || string(client.submitted[0]) != FormatMemo(testFP) {
		t.Errorf("submitted = %q", client.submitted)
	}
	if len(client.topUps) != 0 {
		t.Errorf("unexpected top-up with healthy balance: %v", client.topUps)
	}
}

func TestCertify_Errors(t *testing.T) {
	tests := []struct {
		name      string
		fp        string
		submitErr error
		want      Reason
	}{
		{name: "invalid fingerprint", fp: "abc", want: ReasonInvalidFingerprint},
		{name: "insufficient funds", fp: testFP, submitErr: errors.New("Transaction simulation failed: Attempt to debit an account but found no record of a prior credit."), want: ReasonInsufficientFunds},
		{name: "insufficient lamports", fp: testFP, submitErr: errors.New("custom program error: insufficient lamports 10, need 5000"), want: ReasonInsufficientFunds},
		{name: "rpc failure", fp: testFP, submitErr: errors.New("connection refused"), want: ReasonSubmissionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockClient{SubmitFunc: func(ctx context.Context, memo []byte) (string, error) {
				return "", tt.submitErr
			}}
			_, err := NewAnchor(client, DefaultConfig).Certify(context.Background(), tt.fp)

			var lerr *Error
			if !errors.As(err, &lerr) {
				t.Fatalf("Certify() error = %v, want *Error", err)
			}
			if lerr.Reason != tt.want {
				t.Errorf("Reason = %s, want %s", lerr.Reason, tt.want)
			}
			if tt.submitErr != nil && !errors.Is(err, tt.submitErr) {
				t.Errorf("error does not wrap submit error")
			}
			if tt.want == ReasonInvalidFingerprint && len(client.submitted) != 0 {
				t.Errorf("submitted despite invalid fingerprint")
			}
			if tt.submitErr != nil && len(client.submitted) != 1 {
				t.Errorf("submitted %d times, want exactly once", len(client.submitted))
			}
		})
	}
}

func TestCertify_TopUp(t *testing.T) {
	tests := []struct {
		name      string
		network   string
		balance   uint64
		topUpErr  error
		wantTopUp bool
	}{
		{name: "low on devnet", network: "devnet", balance: 0, wantTopUp: true},
		{name: "top-up failure is swallowed", network: "testnet", balance: 10, topUpErr: errors.New("airdrop limit"), wantTopUp: true},
		{name: "low on mainnet", network: "mainnet-beta", balance: 0, wantTopUp: false},
		{name: "healthy balance", network: "devnet", balance: DefaultConfig.MinBalanceLamports, wantTopUp: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockClient{
				network:          tt.network,
				BalanceFunc:      func(ctx context.Context) (uint64, error) { return tt.balance, nil },
				RequestTopUpFunc: func(ctx context.Context, lamports uint64) error { return tt.topUpErr },
			}
			if _, err := NewAnchor(client, DefaultConfig).Certify(context.Background(), testFP); err != nil {
				t.Fatalf("Certify() error = %v", err)
			}
			if got := len(client.topUps) == 1; got != tt.wantTopUp {
				t.Errorf("top-ups = %v, want top-up %v", client.topUps, tt.wantTopUp)
			}
			if tt.wantTopUp && client.topUps[0] != DefaultConfig.TopUpLamports {
				t.Errorf("requested %d lamports, want %d", client.topUps[0], DefaultConfig.TopUpLamports)
			}
			if len(client.submitted) != 1 {
				t.Errorf("submitted %d times, want 1", len(client.submitted))
			}
		})
	}
}

func TestVerify_Strategies(t *testing.T) {
	memo := FormatMemo(testFP)
	blockTime := time.Date(2026, 2, 7, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		tx       Transaction
		strategy string
	}{
		{
			name:     "compiled base58",
			tx:       Transaction{Compiled: []Instruction{{ProgramID: MemoProgramID, Data: []byte(base58.Encode([]byte(memo)))}}},
			strategy: StrategyCompiledBase58,
		},
		{
			name:     "legacy base58",
			tx:       Transaction{Legacy: []Instruction{{ProgramID: MemoProgramID, Data: []byte(base58.Encode([]byte(memo)))}}},
			strategy: StrategyLegacyBase58,
		},
		{
			name:     "legacy raw",
			tx:       Transaction{Legacy: []Instruction{{ProgramID: MemoProgramID, Data: []byte(memo)}}},
			strategy: StrategyLegacyRaw,
		},
		{
			name:     "legacy base64",
			tx:       Transaction{Legacy: []Instruction{{Data: []byte(base64.StdEncoding.EncodeToString([]byte(memo)))}}},
			strategy: StrategyLegacyBase64,
		},
		{
			name:     "log messages",
			tx:       Transaction{Logs: []string{"Program " + MemoProgramID + " invoke [1]", `Program log: Memo (len 82): "` + memo + `"`}},
			strategy: StrategyLogMessages,
		},
		{
			name: "other programs skipped",
			tx: Transaction{Compiled: []Instruction{
				{ProgramID: "ComputeBudget111111111111111111111111111111", Data: []byte(base58.Encode([]byte("RECEIPTID:v1:HASH:" + strings.Repeat("0", 64))))},
				{ProgramID: MemoProgramIDv1, Data: []byte(base58.Encode([]byte(memo)))},
			}},
			strategy: StrategyCompiledBase58,
		},
		{
			name: "later strategy after garbage",
			tx: Transaction{
				Compiled: []Instruction{{ProgramID: MemoProgramID, Data: []byte("0OIl not base58")}},
				Legacy:   []Instruction{{ProgramID: MemoProgramID, Data: []byte(memo)}},
			},
			strategy: StrategyLegacyRaw,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := tt.tx
			tx.BlockTime = &blockTime
			res := NewAnchor(withTx(&tx), DefaultConfig).Verify(context.Background(), testTxID, strings.ToUpper(testFP))

			if !res.Verified {
				t.Fatalf("Verify() = %+v, want verified", res)
			}
			if res.Strategy != tt.strategy {
				t.Errorf("Strategy = %s, want %s", res.Strategy, tt.strategy)
			}
			if res.ChainFingerprint != testFP || res.Protocol != Protocol || res.Version != Version {
				t.Errorf("Verify() = %+v", res)
			}
			if res.BlockTime == nil || !res.BlockTime.Equal(blockTime) {
				t.Errorf("BlockTime = %v", res.BlockTime)
			}
		})
	}
}

func TestVerify_Failures(t *testing.T) {
	other := strings.Repeat("a", 64)

	tests := []struct {
		name   string
		txID   string
		client *mockClient
		want   Reason
	}{
		{
			name:   "invalid transaction id",
			txID:   "nope",
			client: &mockClient{FetchFunc: func(ctx context.Context, txID string) (*Transaction, error) { panic("must not fetch") }},
			want:   ReasonInvalidTransactionID,
		},
		{
			name:   "not found",
			txID:   testTxID,
			client: &mockClient{},
			want:   ReasonTransactionNotFound,
		},
		{
			name: "rpc error",
			txID: testTxID,
			client: &mockClient{FetchFunc: func(ctx context.Context, txID string) (*Transaction, error) {
				return nil, errors.New("503 service unavailable")
			}},
			want: ReasonVerificationError,
		},
		{
			name:   "no memo",
			txID:   testTxID,
			client: withTx(&Transaction{Compiled: []Instruction{{ProgramID: "11111111111111111111111111111111", Data: []byte("3Bxs4h24hBtQy9rw")}}}),
			want:   ReasonNoMemoFound,
		},
		{
			name:   "memo with wrong format",
			txID:   testTxID,
			client: withTx(&Transaction{Legacy: []Instruction{{ProgramID: MemoProgramID, Data: []byte("hello from a wallet")}}}),
			want:   ReasonInvalidMemoFormat,
		},
		{
			name:   "memo from another protocol",
			txID:   testTxID,
			client: withTx(&Transaction{Legacy: []Instruction{{ProgramID: MemoProgramID, Data: []byte("SOMEONEELSE:v9:HASH:" + testFP)}}}),
			want:   ReasonInvalidMemoFormat,
		},
		{
			name:   "hash mismatch",
			txID:   testTxID,
			client: withTx(&Transaction{Legacy: []Instruction{{ProgramID: MemoProgramID, Data: []byte(FormatMemo(other))}}}),
			want:   ReasonHashMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewAnchor(tt.client, DefaultConfig).Verify(context.Background(), tt.txID, testFP)
			if res.Verified {
				t.Fatalf("Verify() = %+v, want not verified", res)
			}
			if res.Reason != tt.want {
				t.Errorf("Reason = %s, want %s", res.Reason, tt.want)
			}
			if tt.want == ReasonHashMismatch && res.ChainFingerprint != other {
				t.Errorf("ChainFingerprint = %q, want %q", res.ChainFingerprint, other)
			}
		})
	}
}
