// Package solana implements ledger.Client on the Solana memo program.
package solana

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/TaranshG/Receipt-Identifer/internal/ledger"
	"github.com/TaranshG/Receipt-Identifer/internal/logger"
)

var memoProgram = solana.MustPublicKeyFromBase58(ledger.MemoProgramID)

const (
	defaultConfirmTimeout = 60 * time.Second
	pollInterval          = 750 * time.Millisecond
)

// Config selects the cluster and the fee payer.
type Config struct {
	// Network is devnet, testnet or mainnet-beta.
	Network string
	// RPCURL overrides the public endpoint for Network.
	RPCURL string
	// KeypairPath points at a solana-keygen JSON keypair.
	KeypairPath    string
	ConfirmTimeout time.Duration
}

// RPCClient is the subset of *rpc.Client used here.
type RPCClient interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	RequestAirdrop(ctx context.Context, account solana.PublicKey, lamports uint64, commitment rpc.CommitmentType) (solana.Signature, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
}

// Client signs and submits memo transactions.
type Client struct {
	rpc            RPCClient
	payer          solana.PrivateKey
	network        string
	confirmTimeout time.Duration
}

// New loads the keypair and dials the RPC endpoint.
func New(cfg Config) (*Client, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.KeypairPath)
	if err != nil {
		return nil, fmt.Errorf("New: loading keypair %s: %w", cfg.KeypairPath, err)
	}
	endpoint := cfg.RPCURL
	if endpoint == "" {
		endpoint = Endpoint(cfg.Network)
	}
	return NewWithRPC(rpc.New(endpoint), key, cfg.Network, cfg.ConfirmTimeout), nil
}

// NewWithRPC builds a Client around an existing RPC implementation.
func NewWithRPC(client RPCClient, payer solana.PrivateKey, network string, confirmTimeout time.Duration) *Client {
	if network == "" {
		network = "devnet"
	}
	if confirmTimeout <= 0 {
		confirmTimeout = defaultConfirmTimeout
	}
	return &Client{rpc: client, payer: payer, network: network, confirmTimeout: confirmTimeout}
}

// Endpoint maps a network name to its public RPC URL.
func Endpoint(network string) string {
	switch strings.ToLower(network) {
	case "mainnet", "mainnet-beta":
		return rpc.MainNetBeta_RPC
	case "testnet":
		return rpc.TestNet_RPC
	case "localnet", "localhost":
		return rpc.LocalNet_RPC
	default:
		return rpc.DevNet_RPC
	}
}

func (c *Client) Network() string { return c.network }

// Payer is the fee payer's public key.
func (c *Client) Payer() solana.PublicKey { return c.payer.PublicKey() }

func (c *Client) Balance(ctx context.Context) (uint64, error) {
	out, err := c.rpc.GetBalance(ctx, c.payer.PublicKey(), rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("Balance: %w", err)
	}
	return out.Value, nil
}

// RequestTopUp asks the cluster faucet for lamports. Only devnet and
// testnet honour it.
func (c *Client) RequestTopUp(ctx context.Context, lamports uint64) error {
	sig, err := c.rpc.RequestAirdrop(ctx, c.payer.PublicKey(), lamports, rpc.CommitmentConfirmed)
	if err != nil {
		return fmt.Errorf("RequestTopUp: requesting airdrop: %w", err)
	}
	if err := c.awaitConfirmation(ctx, sig); err != nil {
		return fmt.Errorf("RequestTopUp: %w", err)
	}
	return nil
}

// Submit builds a single memo instruction signed by the payer and waits for
// it to reach confirmed commitment.
func (c *Client) Submit(ctx context.Context, memo []byte) (string, error) {
	log := logger.FromContext(ctx)

	recent, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("Submit: fetching blockhash: %w", err)
	}

	payer := c.payer.PublicKey()
	inst := solana.NewInstruction(memoProgram, solana.AccountMetaSlice{
		solana.Meta(payer).SIGNER().WRITE(),
	}, memo)

	tx, err := solana.NewTransaction([]solana.Instruction{inst}, recent.Value.Blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return "", fmt.Errorf("Submit: building transaction: %w", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer) {
			return &c.payer
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("Submit: signing: %w", err)
	}

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return "", fmt.Errorf("Submit: sending transaction: %w", err)
	}
	log.Debug().Str("tx_id", sig.String()).Msg("Memo transaction sent, awaiting confirmation")

	if err := c.awaitConfirmation(ctx, sig); err != nil {
		return "", fmt.Errorf("Submit: %w", err)
	}
	return sig.String(), nil
}

func (c *Client) awaitConfirmation(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		out, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
		if err == nil && out != nil && len(out.Value) > 0 && out.Value[0] != nil {
			st := out.Value[0]
			if st.Err != nil {
				return fmt.Errorf("transaction %s failed: %v", sig, st.Err)
			}
			if st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				st.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("awaiting confirmation of %s: %w", sig, ctx.Err())
		case <-ticker.C:
		}
	}
}

// FetchTransaction reads a confirmed transaction. Compiled instruction data
// is handed over as base58 text, the same shape the JSON RPC encoding uses.
func (c *Client) FetchTransaction(ctx context.Context, txID string) (*ledger.Transaction, error) {
	sig, err := solana.SignatureFromBase58(txID)
	if err != nil {
		return nil, fmt.Errorf("FetchTransaction: parsing signature: %w", err)
	}

	maxVersion := uint64(0)
	out, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if errors.Is(err, rpc.ErrNotFound) || (err == nil && out == nil) {
		return nil, ledger.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("FetchTransaction: %w", err)
	}

	return convert(txID, out)
}

func convert(txID string, out *rpc.GetTransactionResult) (*ledger.Transaction, error) {
	res := &ledger.Transaction{Signature: txID}
	if out.BlockTime != nil {
		t := out.BlockTime.Time().UTC()
		res.BlockTime = &t
	}
	if out.Meta != nil {
		res.Logs = out.Meta.LogMessages
	}
	if out.Transaction == nil {
		return res, nil
	}

	tx, err := out.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("FetchTransaction: decoding transaction: %w", err)
	}
	keys := tx.Message.AccountKeys
	for _, inst := range tx.Message.Instructions {
		var program string
		if int(inst.ProgramIDIndex) < len(keys) {
			program = keys[inst.ProgramIDIndex].String()
		}
		res.Compiled = append(res.Compiled, ledger.Instruction{
			ProgramID: program,
			Data:      []byte(inst.Data.String()),
		})
	}
	return res, nil
}
