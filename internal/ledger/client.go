// Package ledger anchors receipt fingerprints in memo instructions on a
// public ledger and verifies them later.
package ledger

import (
	"context"
	"errors"
	"time"
)

// Memo program ids (v2 and the deprecated v1) as base58 strings.
const (
	MemoProgramID   = "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr"
	MemoProgramIDv1 = "Memo1UhkJRfHyvLMcVucJwxXeuD728EqVDDwQDxFMNo"
)

// ErrTransactionNotFound is returned by Client.FetchTransaction when the
// ledger has no record of the signature.
var ErrTransactionNotFound = errors.New("transaction not found")

// Client is the ledger network collaborator. Implementations hold the
// signing key.
type Client interface {
	// Submit sends a memo transaction and blocks until it is confirmed.
	Submit(ctx context.Context, memo []byte) (txID string, err error)
	FetchTransaction(ctx context.Context, txID string) (*Transaction, error)
	Balance(ctx context.Context) (lamports uint64, err error)
	RequestTopUp(ctx context.Context, lamports uint64) error
	Network() string
}

// Transaction is the part of a fetched transaction the decoder cares about.
type Transaction struct {
	Signature string
	BlockTime *time.Time
	// Compiled holds instructions from the compiled message, Legacy those
	// from a pre-parsed (jsonParsed / legacy) view of the same message.
	Compiled []Instruction
	Legacy   []Instruction
	Logs     []string
}

// Instruction carries a payload exactly as it came off the wire: base58
// text, base64 text or raw bytes depending on the RPC encoding.
type Instruction struct {
	ProgramID string
	Data      []byte
}

func isMemoProgram(id string) bool {
	return id == MemoProgramID || id == MemoProgramIDv1
}
