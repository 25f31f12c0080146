package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
)

var ErrUnresolvableAddress = errors.New("address cannot be resolved")

var _ Wallet = (*SolanaWallet)(nil)

// RPCRetryPolicy retries transient RPC failures three times, two seconds
// apart.
func RPCRetryPolicy(clock Clock) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     FixedBackoff(2 * time.Second),
		Retryable:   IsTransient,
		Clock:       clock,
	}
}

// SolanaWallet pays native SOL transfers from one key over JSON-RPC.
type SolanaWallet struct {
	client *rpc.Client
	key    solana.PrivateKey
	policy RetryPolicy
}

func NewSolanaWallet(rpcURL, privateKey string, policy RetryPolicy) (*SolanaWallet, error) {
	key, err := solana.PrivateKeyFromBase58(strings.TrimSpace(privateKey))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &SolanaWallet{
		client: rpc.New(rpcURL),
		key:    key,
		policy: policy,
	}, nil
}

func (w *SolanaWallet) Address() string {
	return w.key.PublicKey().String()
}

func (w *SolanaWallet) Balance(ctx context.Context) (uint64, error) {
	var lamports uint64
	err := w.policy.Do(ctx, func(ctx context.Context) error {
		res, err := w.client.GetBalance(ctx, w.key.PublicKey(), rpc.CommitmentFinalized)
		if err != nil {
			return err
		}
		lamports = res.Value
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return lamports, nil
}

// Transfer signs and sends one system transfer. .sol names are not resolved.
func (w *SolanaWallet) Transfer(ctx context.Context, to string, lamports uint64) (string, error) {
	if strings.HasSuffix(to, ".sol") {
		return "", fmt.Errorf("%w: %s", ErrUnresolvableAddress, to)
	}
	dest, err := solana.PublicKeyFromBase58(to)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrUnresolvableAddress, to, err)
	}

	var blockhash solana.Hash
	err = w.policy.Do(ctx, func(ctx context.Context) error {
		res, err := w.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
		if err != nil {
			return err
		}
		blockhash = res.Value.Blockhash
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("latest blockhash: %w", err)
	}

	from := w.key.PublicKey()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(lamports, from, dest).Build(),
		},
		blockhash,
		solana.TransactionPayer(from),
	)
	if err != nil {
		return "", fmt.Errorf("build transaction: %w", err)
	}

	if _, err := tx.Sign(func(k solana.PublicKey) *solana.PrivateKey {
		if k.Equals(from) {
			return &w.key
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	sig, err := w.client.SendTransaction(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}
	return sig.String(), nil
}
