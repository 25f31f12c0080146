package internal

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type AgentOptions struct {
	Clock  Clock
	Logger *zap.Logger
	// Registerer receives the agent's metrics. Nil disables them.
	Registerer prometheus.Registerer
	// SkipValidation builds read-only agents (CLI inspection commands) from
	// partial configuration.
	SkipValidation bool
}

// Agent is the fully wired bot.
type Agent struct {
	Config    *Config
	Scope     Scope
	Store     Store
	X         *XClient
	Persona   *PersonaStore
	Mute      *MuteList
	Embedder  Embedder
	Memories  *LongTermMemoryStore
	Responder *Responder
	Pipeline  *Pipeline
	Metrics   *Metrics
	Clock     Clock
	Logger    *zap.Logger
}

// OpenAgentStore opens the configured store, defaulting to sqlite in the
// scope's data directory.
func OpenAgentStore(ctx context.Context, cfg *Config, scope Scope) (*SQLStore, error) {
	dsn := cfg.Store.DSN
	if cfg.Store.Driver == DialectSQLite && dsn == "" {
		if err := os.MkdirAll(scope.DataPath, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = scope.DBPath()
	}
	return OpenStore(ctx, cfg.Store.Driver, dsn)
}

func BuildAgent(ctx context.Context, cfg *Config, scope Scope, opts AgentOptions) (*Agent, error) {
	if !opts.SkipValidation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	clock := opts.Clock
	if clock == nil {
		clock = NewRealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var metrics *Metrics
	if opts.Registerer != nil {
		metrics = NewMetrics(opts.Registerer)
	}

	persona, err := NewPersonaStore(scope.PersonaPath(), cfg.Account.Username)
	if err != nil {
		return nil, err
	}
	mute, err := LoadMuteList(scope.IgnorePath())
	if err != nil {
		return nil, fmt.Errorf("load mute list: %w", err)
	}

	store, err := OpenAgentStore(ctx, cfg, scope)
	if err != nil {
		return nil, err
	}

	chat, err := NewFantasyChat(FantasyConfig{
		Provider: cfg.LLM.Chat.Provider,
		APIKey:   cfg.LLM.Chat.APIKey,
		BaseURL:  cfg.LLM.Chat.BaseURL,
		Model:    cfg.LLM.Chat.Model,
	})
	if err != nil && !opts.SkipValidation {
		_ = store.Close()
		return nil, err
	}

	completionModel := cfg.LLM.Completion.Model
	if completionModel == "" {
		completionModel = cfg.Stage(StageDraft).Model
	}
	completer := NewOpenAICompleter(OpenAIConfig{
		APIKey:  cfg.LLM.Completion.APIKey,
		BaseURL: cfg.LLM.Completion.BaseURL,
		Model:   completionModel,
		Timeout: cfg.LLM.Timeout,
	})

	embedder := NewEmbeddingAdapter(
		NewOpenAIEmbedder(OpenAIConfig{
			APIKey:  cfg.LLM.Embeddings.APIKey,
			BaseURL: cfg.LLM.Embeddings.BaseURL,
			Model:   cfg.LLM.Embeddings.Model,
			Timeout: cfg.LLM.Timeout,
		}, cfg.LLM.Embeddings.Dimension),
		LLMRetryPolicy(clock),
	)

	x := NewXClient(ctx, XClientConfig{
		BaseURL:           cfg.X.BaseURL,
		BearerToken:       cfg.X.BearerToken,
		Username:          cfg.Account.Username,
		UserID:            cfg.Account.UserID,
		RequestsPerSecond: cfg.X.RequestsPerSecond,
		DailyPostLimit:    cfg.X.DailyPostLimit,
		Timeout:           cfg.X.Timeout,
	}, clock, logger)

	caller := NewLLMCaller(chat, LLMRetryPolicy(clock), logger, metrics)
	memories := NewLongTermMemoryStore(store, cfg.LLM.Embeddings.Dimension, clock)
	responder := NewResponder(x, store, caller, persona, mute, x.PostBudget(), DefaultResponderConfig(cfg), clock, logger, metrics)

	var wallet *WalletDecider
	if cfg.Wallet.Enabled && cfg.Wallet.PrivateKey != "" {
		sol, err := NewSolanaWallet(cfg.Wallet.RPCURL, cfg.Wallet.PrivateKey, RPCRetryPolicy(clock))
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		wallet = NewWalletDecider(sol, caller, persona, DefaultWalletDeciderConfig(cfg), clock, logger, metrics)
		logger.Info("wallet enabled", zap.String("address", sol.Address()))
	}

	var follow *FollowDecider
	if cfg.Policy.Follow {
		follow = NewFollowDecider(x, store, caller, persona, mute, DefaultFollowConfig(cfg), clock, logger, metrics)
	}

	pipeline := NewPipeline(PipelineDeps{
		Store:     store,
		Social:    x,
		Fetcher:   NewContextFetcher(store, x, cfg.Account.Username),
		Responder: responder,
		Wallet:    wallet,
		Follow:    follow,
		ShortTerm: NewShortTermMemoryGenerator(caller, persona, cfg.Stage(StageShortTerm), cfg.LLM.Timeout, logger),
		Embedder:  embedder,
		Memories:  memories,
		Generator: NewContentGenerator(completer, chat, persona, DefaultGeneratorConfig(cfg), clock, logger),
		Scorer:    NewSignificanceScorer(caller, persona, cfg.Stage(StageSignificance), cfg.LLM.Timeout, logger),
		Guard:     NewOriginalityGuard(cfg.Policy.MaxSimilarity),
		Mute:      mute,
		Clock:     clock,
		Logger:    logger,
		Metrics:   metrics,
	}, DefaultPipelineConfig(cfg))

	return &Agent{
		Config:    cfg,
		Scope:     scope,
		Store:     store,
		X:         x,
		Persona:   persona,
		Mute:      mute,
		Embedder:  embedder,
		Memories:  memories,
		Responder: responder,
		Pipeline:  pipeline,
		Metrics:   metrics,
		Clock:     clock,
		Logger:    logger,
	}, nil
}

func (a *Agent) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}

// Search embeds query and returns the closest long-term memories.
func (a *Agent) Search(ctx context.Context, query string, k int) ([]ScoredMemory, error) {
	emb, err := a.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return a.Memories.RetrieveRelevant(ctx, emb, k)
}

// Respond runs only the responder: unseen mentions first, then priority
// authors.
func (a *Agent) Respond(ctx context.Context) (int, error) {
	mentions, err := a.X.Mentions(ctx)
	if err != nil {
		return 0, err
	}
	var rest []Notification
	for _, m := range mentions {
		if !a.Responder.IsPriority(m.AuthorUsername) {
			rest = append(rest, m)
		}
	}
	n, err := a.Responder.RespondToNotifications(ctx, rest)
	m, perr := a.Responder.RespondToPriorityAuthors(ctx)
	return n + m, errors.Join(err, perr)
}
