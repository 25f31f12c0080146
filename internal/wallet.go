package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrMalformedDecision = errors.New("malformed decision")
	ErrOverBudget        = errors.New("transfers exceed balance")
)

const LamportsPerSOL = 1_000_000_000

// TransferIntent is one model-proposed transfer, amount in SOL.
type TransferIntent struct {
	Address string
	Amount  float64
}

// Transfer is a validated intent in lamports.
type Transfer struct {
	Address  string
	Lamports uint64
}

// Wallet is the blockchain collaborator: a funded key that can pay out.
type Wallet interface {
	Address() string
	Balance(ctx context.Context) (uint64, error)
	Transfer(ctx context.Context, to string, lamports uint64) (string, error)
}

var (
	base58Address = regexp.MustCompile(`\b[1-9A-HJ-NP-Za-km-z]{32,44}\b`)
	solName       = regexp.MustCompile(`\b[a-zA-Z0-9][a-zA-Z0-9-]*\.sol\b`)
)

// ExtractAddresses returns the distinct base58 addresses and .sol names in
// texts, in order of first appearance.
func ExtractAddresses(texts []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, t := range texts {
		for _, re := range []*regexp.Regexp{base58Address, solName} {
			for _, m := range re.FindAllString(t, -1) {
				if !seen[m] {
					seen[m] = true
					out = append(out, m)
				}
			}
		}
	}
	return out
}

func SOLToLamports(sol float64) uint64 {
	if sol <= 0 {
		return 0
	}
	return uint64(math.Round(sol * LamportsPerSOL))
}

func LamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / LamportsPerSOL
}

type WalletDeciderConfig struct {
	MinBalance uint64
	Params     ModelParams
	Timeout    time.Duration
	Attempts   int
}

func DefaultWalletDeciderConfig(cfg *Config) WalletDeciderConfig {
	return WalletDeciderConfig{
		MinBalance: SOLToLamports(cfg.Wallet.MinBalanceSOL),
		Params:     cfg.Stage(StageWallet),
		Timeout:    cfg.LLM.Timeout,
		Attempts:   2,
	}
}

// WalletDecider asks the model whether to pay any address found in the
// notifications and executes what survives validation. The model's view of
// the balance is advisory; Validate re-checks every batch.
type WalletDecider struct {
	wallet  Wallet
	caller  *LLMCaller
	persona *PersonaStore
	cfg     WalletDeciderConfig
	clock   Clock
	logger  *zap.Logger
	metrics *Metrics
}

func NewWalletDecider(wallet Wallet, caller *LLMCaller, persona *PersonaStore, cfg WalletDeciderConfig, clock Clock, logger *zap.Logger, metrics *Metrics) *WalletDecider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = NewRealClock()
	}
	return &WalletDecider{
		wallet:  wallet,
		caller:  caller,
		persona: persona,
		cfg:     cfg,
		clock:   clock,
		logger:  logger.Named("wallet"),
		metrics: metrics,
	}
}

// Run checks the balance, decides, validates and executes. It returns the
// number of transfers that went through.
func (d *WalletDecider) Run(ctx context.Context, texts []string) (int, error) {
	balance, err := d.wallet.Balance(ctx)
	if err != nil {
		return 0, fmt.Errorf("balance: %w", err)
	}
	if balance <= d.cfg.MinBalance {
		d.logger.Info("balance below minimum, skipping",
			zap.Float64("balance_sol", LamportsToSOL(balance)),
			zap.Float64("min_sol", LamportsToSOL(d.cfg.MinBalance)))
		return 0, nil
	}

	intents, err := d.Decide(ctx, texts, balance)
	if err != nil {
		return 0, err
	}
	if len(intents) == 0 {
		return 0, nil
	}

	transfers, err := Validate(intents, balance)
	if err != nil {
		d.metrics.transfer("rejected")
		d.logger.Warn("transfer batch rejected", zap.Int("intents", len(intents)), zap.Error(err))
		return 0, err
	}
	return d.Execute(ctx, transfers), nil
}

// Decide returns the model's transfer intents for the candidate addresses in
// texts. No candidates means no call.
func (d *WalletDecider) Decide(ctx context.Context, texts []string, balance uint64) ([]TransferIntent, error) {
	candidates := ExtractAddresses(texts)
	if len(candidates) == 0 {
		return nil, nil
	}

	prompt, err := d.persona.Render(PromptWallet, map[string]any{
		"Posts":      FormatContext(texts),
		"Candidates": strings.Join(candidates, "\n"),
		"Balance":    strconv.FormatFloat(LamportsToSOL(balance), 'f', -1, 64),
	})
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		allowed[c] = true
	}

	var intents []TransferIntent
	policy := RetryPolicy{
		MaxAttempts: max(d.cfg.Attempts, 1),
		Retryable:   func(err error) bool { return errors.Is(err, ErrMalformedDecision) },
		Clock:       d.clock,
	}
	err = policy.Do(ctx, func(ctx context.Context) error {
		raw, err := d.caller.Call(ctx, d.cfg.Params.ChatRequest(d.cfg.Timeout, UserMessage(prompt)))
		if err != nil {
			return err
		}
		parsed, err := ParseTransferIntents(raw)
		if err != nil {
			d.logger.Warn("malformed wallet decision", zap.String("raw", raw))
			return err
		}
		intents = intents[:0]
		for _, in := range parsed {
			if !allowed[in.Address] {
				d.logger.Warn("decision names an address not in context", zap.String("address", in.Address))
				continue
			}
			intents = append(intents, in)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("wallet decision: %w", err)
	}
	return intents, nil
}

// ParseTransferIntents reads the JSON array in raw, ignoring prose around
// it. Entries without an address or with a non-positive amount are dropped.
func ParseTransferIntents(raw string) ([]TransferIntent, error) {
	var entries []map[string]any
	if err := extractJSONArray(raw, &entries); err != nil {
		return nil, err
	}

	var out []TransferIntent
	for _, e := range entries {
		addr, _ := e["address"].(string)
		addr = strings.TrimSpace(addr)
		amount, ok := number(e["amount"])
		if addr == "" || !ok || amount <= 0 {
			continue
		}
		out = append(out, TransferIntent{Address: addr, Amount: amount})
	}
	return out, nil
}

func extractJSONArray(raw string, dst any) error {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end < start {
		return fmt.Errorf("%w: no JSON array", ErrMalformedDecision)
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), dst); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedDecision, err)
	}
	return nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Validate converts intents to lamports. A batch whose sum exceeds balance
// is rejected as a whole; a sum equal to balance passes.
func Validate(intents []TransferIntent, balance uint64) ([]Transfer, error) {
	out := make([]Transfer, 0, len(intents))
	var total uint64
	for _, in := range intents {
		lamports := SOLToLamports(in.Amount)
		if lamports == 0 {
			continue
		}
		if lamports > balance || total > balance-lamports {
			return nil, fmt.Errorf("%w: balance %d lamports", ErrOverBudget, balance)
		}
		total += lamports
		out = append(out, Transfer{Address: in.Address, Lamports: lamports})
	}
	return out, nil
}

// Execute sends transfers one by one. A failed transfer is logged and the
// rest still go out.
func (d *WalletDecider) Execute(ctx context.Context, transfers []Transfer) int {
	executed := 0
	for _, t := range transfers {
		if ctx.Err() != nil {
			break
		}
		sig, err := d.wallet.Transfer(ctx, t.Address, t.Lamports)
		if err != nil {
			d.metrics.transfer("failed")
			d.logger.Error("transfer failed",
				zap.String("to", t.Address),
				zap.Uint64("lamports", t.Lamports),
				zap.Error(err))
			continue
		}
		executed++
		d.metrics.transfer("ok")
		d.logger.Info("transfer sent",
			zap.String("to", t.Address),
			zap.Uint64("lamports", t.Lamports),
			zap.String("signature", sig))
	}
	return executed
}
