package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/TaranshG/Receipt-Identifer/internal/logger"
)

// Config tunes the funding behaviour around Submit.
type Config struct {
	// MinBalanceLamports triggers a single top-up request on non-mainnet
	// networks when the payer balance is below it.
	MinBalanceLamports uint64
	TopUpLamports      uint64
}

// DefaultConfig matches a devnet payer: top up below 0.01 SOL with 1 SOL.
var DefaultConfig = Config{
	MinBalanceLamports: 10_000_000,
	TopUpLamports:      1_000_000_000,
}

// Certificate is the immutable result of a successful Certify.
type Certificate struct {
	TxID        string    `json:"tx_id"`
	Fingerprint string    `json:"fingerprint"`
	Timestamp   time.Time `json:"timestamp"`
	Network     string    `json:"network"`
}

// VerifyResult never carries an error; failures are labelled by Reason.
type VerifyResult struct {
	Verified         bool       `json:"verified"`
	ChainFingerprint string     `json:"chain_fingerprint,omitempty"`
	Reason           Reason     `json:"reason,omitempty"`
	Detail           string     `json:"detail,omitempty"`
	Strategy         string     `json:"strategy,omitempty"`
	Protocol         string     `json:"protocol,omitempty"`
	Version          string     `json:"version,omitempty"`
	BlockTime        *time.Time `json:"block_time,omitempty"`
}

// Anchor writes and reads fingerprint memos through a Client.
type Anchor struct {
	client Client
	cfg    Config
	now    func() time.Time
}

// NewAnchor wires an Anchor to client.
func NewAnchor(client Client, cfg Config) *Anchor {
	return &Anchor{client: client, cfg: cfg, now: time.Now}
}

// Network reports the underlying client's network name.
func (a *Anchor) Network() string {
	return a.client.Network()
}

// Certify anchors fp on chain. Submission is attempted exactly once; a
// resubmission would create a second transaction for the same fingerprint.
func (a *Anchor) Certify(ctx context.Context, fp string) (Certificate, error) {
	log := logger.FromContext(ctx).With().Str("fingerprint", fp).Logger()

	if !validFingerprint(fp) {
		return Certificate{}, &Error{Reason: ReasonInvalidFingerprint, Err: fmt.Errorf("want 64 hex characters, got %q", fp)}
	}
	fp = strings.ToLower(fp)

	a.ensureFunds(ctx)

	txID, err := a.client.Submit(ctx, []byte(FormatMemo(fp)))
	if err != nil {
		lerr := classifySubmitError(err)
		log.Error().Err(err).Str("reason", string(lerr.Reason)).Msg("Memo submission failed")
		return Certificate{}, lerr
	}

	log.Info().Str("tx_id", txID).Str("network", a.client.Network()).Msg("Fingerprint anchored")
	return Certificate{
		TxID:        txID,
		Fingerprint: fp,
		Timestamp:   a.now().UTC(),
		Network:     a.client.Network(),
	}, nil
}

// ensureFunds requests one top-up when the payer runs low off mainnet.
// Failures are logged and otherwise ignored; Submit reports the outcome.
func (a *Anchor) ensureFunds(ctx context.Context) {
	log := logger.FromContext(ctx)

	network := a.client.Network()
	if strings.Contains(strings.ToLower(network), "mainnet") || a.cfg.MinBalanceLamports == 0 {
		return
	}

	balance, err := a.client.Balance(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Could not read payer balance")
		return
	}
	if balance >= a.cfg.MinBalanceLamports {
		return
	}

	log.Info().
		Uint64("balance", balance).
		Uint64("requested", a.cfg.TopUpLamports).
		Str("network", network).
		Msg("Payer balance low, requesting top-up")
	if err := a.client.RequestTopUp(ctx, a.cfg.TopUpLamports); err != nil {
		log.Warn().Err(err).Msg("Top-up request failed")
	}
}

// Verify fetches txID and checks its memo against expected.
func (a *Anchor) Verify(ctx context.Context, txID, expected string) (res VerifyResult) {
	log := logger.FromContext(ctx).With().Str("tx_id", txID).Logger()

	if !ValidTxID(txID) {
		return VerifyResult{Reason: ReasonInvalidTransactionID, Detail: "transaction id is not a base58 signature"}
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Memo decoding panicked")
			res = VerifyResult{Reason: ReasonVerificationError, Detail: fmt.Sprint(r)}
		}
	}()

	tx, err := a.client.FetchTransaction(ctx, txID)
	switch {
	case errors.Is(err, ErrTransactionNotFound) || (err == nil && tx == nil):
		log.Info().Msg("Transaction not found")
		return VerifyResult{Reason: ReasonTransactionNotFound}
	case err != nil:
		log.Error().Err(err).Msg("Transaction fetch failed")
		return VerifyResult{Reason: ReasonVerificationError, Detail: err.Error()}
	}

	dec := decodeMemo(tx)
	if !dec.found {
		reason := ReasonNoMemoFound
		if dec.sawMemo {
			reason = ReasonInvalidMemoFormat
		}
		log.Info().Str("reason", string(reason)).Msg("No anchoring memo in transaction")
		return VerifyResult{Reason: reason, BlockTime: tx.BlockTime}
	}

	res = VerifyResult{
		ChainFingerprint: dec.memo.Fingerprint,
		Strategy:         dec.strategy,
		Protocol:         dec.memo.Protocol,
		Version:          dec.memo.Version,
		BlockTime:        tx.BlockTime,
	}
	if strings.EqualFold(dec.memo.Fingerprint, strings.TrimSpace(expected)) {
		res.Verified = true
	} else {
		res.Reason = ReasonHashMismatch
	}

	log.Info().
		Bool("verified", res.Verified).
		Str("strategy", dec.strategy).
		Str("chain_fingerprint", dec.memo.Fingerprint).
		Msg("Memo decoded")
	return res
}
