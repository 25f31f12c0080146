package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrMissingConfig = errors.New("missing required configuration")

const (
	StageShortTerm     = "short_term"
	StageDraft         = "draft"
	StageRefine        = "refine"
	StageSignificance  = "significance"
	StageReply         = "reply"
	StageConversation  = "conversation"
	StagePriorityReply = "priority_reply"
	StageWallet        = "wallet"
	StageFollow        = "follow"
)

type AccountConfig struct {
	Username string `yaml:"username"`
	UserID   string `yaml:"user_id,omitempty"`
	Email    string `yaml:"email,omitempty"`
}

type XConfig struct {
	BaseURL           string        `yaml:"base_url"`
	BearerToken       string        `yaml:"bearer_token,omitempty"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	DailyPostLimit    int           `yaml:"daily_post_limit"`
	Timeout           time.Duration `yaml:"timeout"`
}

type ProviderConfig struct {
	Provider string `yaml:"provider,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
	Model    string `yaml:"model"`
}

type EmbeddingsConfig struct {
	APIKey    string `yaml:"api_key,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

// ModelParams are the generation parameters of one pipeline stage.
type ModelParams struct {
	Model       string   `yaml:"model"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature float64  `yaml:"temperature"`
	TopP        float64  `yaml:"top_p,omitempty"`
	TopK        int      `yaml:"top_k,omitempty"`
	Stop        []string `yaml:"stop,omitempty"`
	Stream      bool     `yaml:"stream,omitempty"`
}

type LLMConfig struct {
	Chat       ProviderConfig         `yaml:"chat"`
	Completion ProviderConfig         `yaml:"completion"`
	Embeddings EmbeddingsConfig       `yaml:"embeddings"`
	Timeout    time.Duration          `yaml:"timeout"`
	Stages     map[string]ModelParams `yaml:"stages"`
}

type WalletConfig struct {
	Enabled       bool    `yaml:"enabled"`
	RPCURL        string  `yaml:"rpc_url"`
	PrivateKey    string  `yaml:"private_key,omitempty"`
	MinBalanceSOL float64 `yaml:"min_balance_sol"`
}

type PolicyConfig struct {
	PublishThreshold int           `yaml:"publish_threshold"`
	StoreThreshold   int           `yaml:"store_threshold"`
	FollowThreshold  float64       `yaml:"follow_threshold"`
	// MaxSimilarity holds back near-duplicate posts; 0 disables the check.
	MaxSimilarity    float64       `yaml:"max_similarity"`
	ReplyCap         int           `yaml:"reply_cap"`
	ReplyInterval    time.Duration `yaml:"reply_interval"`
	ReplyToMentions  bool          `yaml:"reply_to_mentions"`
	Follow           bool          `yaml:"follow"`
	PriorityAuthors  []string      `yaml:"priority_authors"`
	RecentPosts      int           `yaml:"recent_posts"`
	RetrieveK        int           `yaml:"retrieve_k"`
	DraftCooldown    time.Duration `yaml:"draft_cooldown"`
}

type ScheduleConfig struct {
	ActivationDelayMax time.Duration `yaml:"activation_delay_max"`
	ActiveMin          time.Duration `yaml:"active_min"`
	ActiveMax          time.Duration `yaml:"active_max"`
	IntervalMin        time.Duration `yaml:"interval_min"`
	IntervalMax        time.Duration `yaml:"interval_max"`
	InitialRun         bool          `yaml:"initial_run"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn,omitempty"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

type Config struct {
	Account  AccountConfig  `yaml:"account"`
	X        XConfig        `yaml:"x"`
	LLM      LLMConfig      `yaml:"llm"`
	Wallet   WalletConfig   `yaml:"wallet"`
	Policy   PolicyConfig   `yaml:"policy"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Store    StoreConfig    `yaml:"store"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

var DefaultPriorityAuthors = []string{
	"truth_terminal", "AndyAyrey", "gabrieldevopsai", "elonmusk", "missoralways", "sama",
}

func DefaultStages() map[string]ModelParams {
	return map[string]ModelParams{
		StageShortTerm:     {Model: "meta-llama/Meta-Llama-3.1-70B-Instruct", MaxTokens: 512, Temperature: 1, TopP: 0.95},
		StageDraft:         {Model: "meta-llama/Meta-Llama-3.1-405B", MaxTokens: 1024, Temperature: 1, TopP: 0.95, TopK: 40, Stop: []string{"<|im_end|>", "<"}},
		StageRefine:        {Model: "meta-llama/Meta-Llama-3.1-70B-Instruct", MaxTokens: 512, Temperature: 1, TopP: 0.95},
		StageSignificance:  {Model: "meta-llama/Meta-Llama-3.1-70B-Instruct", MaxTokens: 8, Temperature: 0},
		StageReply:         {Model: "gpt-4o", MaxTokens: 512, Temperature: 0.5, Stream: true},
		StageConversation:  {Model: "gpt-4o", MaxTokens: 512, Temperature: 0.1, Stream: true},
		StagePriorityReply: {Model: "gpt-4o-mini", MaxTokens: 512, Temperature: 0.1, Stream: true},
		StageWallet:        {Model: "meta-llama/Meta-Llama-3.1-70B-Instruct", MaxTokens: 512, Temperature: 0.2},
		StageFollow:        {Model: "meta-llama/Meta-Llama-3.1-70B-Instruct", MaxTokens: 512, Temperature: 0.2},
	}
}

func DefaultConfig() *Config {
	return &Config{
		Account: AccountConfig{Username: "aurora_terminal"},
		X: XConfig{
			BaseURL:           "https://api.x.com/2",
			RequestsPerSecond: 1,
			DailyPostLimit:    PerUserDailyLimit,
			Timeout:           15 * time.Second,
		},
		LLM: LLMConfig{
			Chat:       ProviderConfig{Provider: "openai", BaseURL: "https://api.hyperbolic.xyz/v1"},
			Completion: ProviderConfig{BaseURL: "https://api.hyperbolic.xyz/v1"},
			Embeddings: EmbeddingsConfig{Model: "text-embedding-3-small", Dimension: 1536},
			Timeout:    30 * time.Second,
			Stages:     DefaultStages(),
		},
		Wallet: WalletConfig{
			Enabled:       true,
			RPCURL:        "https://api.mainnet-beta.solana.com",
			MinBalanceSOL: 0.3,
		},
		Policy: PolicyConfig{
			PublishThreshold: 3,
			StoreThreshold:   7,
			FollowThreshold:  0.98,
			MaxSimilarity:    0,
			ReplyCap:         5,
			ReplyInterval:    10 * time.Second,
			Follow:           true,
			PriorityAuthors:  append([]string(nil), DefaultPriorityAuthors...),
			RecentPosts:      10,
			RetrieveK:        10,
			DraftCooldown:    5 * time.Second,
		},
		Schedule: ScheduleConfig{
			ActivationDelayMax: 30 * time.Minute,
			ActiveMin:          15 * time.Minute,
			ActiveMax:          20 * time.Minute,
			IntervalMin:        30 * time.Second,
			IntervalMax:        180 * time.Second,
			InitialRun:         true,
		},
		Store: StoreConfig{Driver: DialectSQLite},
		Log:   LogConfig{Level: "info", JSON: true},
	}
}

// Stage returns the parameters for a stage, falling back to the defaults.
func (c *Config) Stage(name string) ModelParams {
	if p, ok := c.LLM.Stages[name]; ok && p.Model != "" {
		return p
	}
	return DefaultStages()[name]
}

func LoadConfig(scope Scope) (*Config, error) {
	path := scope.ConfigPath()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.LLM.Stages == nil {
		cfg.LLM.Stages = DefaultStages()
	}

	return cfg, nil
}

func SaveConfig(scope Scope, cfg *Config) error {
	path := scope.ConfigPath()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// ApplyEnv overrides secrets and endpoints from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	set(&c.Account.Username, "X_USERNAME")
	set(&c.Account.UserID, "X_USER_ID")
	set(&c.X.BearerToken, "X_BEARER_TOKEN")
	set(&c.X.BaseURL, "X_API_BASE_URL")

	set(&c.LLM.Chat.APIKey, "LLM_API_KEY")
	set(&c.LLM.Chat.BaseURL, "LLM_BASE_URL")
	set(&c.LLM.Chat.Provider, "LLM_PROVIDER")
	set(&c.LLM.Completion.APIKey, "LLM_API_KEY")
	set(&c.LLM.Completion.BaseURL, "LLM_BASE_URL")
	set(&c.LLM.Embeddings.APIKey, "OPENAI_API_KEY")
	set(&c.LLM.Embeddings.BaseURL, "OPENAI_BASE_URL")

	set(&c.Wallet.PrivateKey, "SOLANA_PRIVATE_KEY")
	set(&c.Wallet.RPCURL, "SOLANA_RPC_URL")

	if v := getenv("DATABASE_URL"); v != "" {
		c.Store.Driver = DialectPostgres
		c.Store.DSN = v
	}
	set(&c.Log.Level, "CHIRP_LOG_LEVEL")
	set(&c.Metrics.Addr, "CHIRP_METRICS_ADDR")

	if v := getenv("CHIRP_WALLET_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Wallet.Enabled = b
		}
	}
}

// Validate fails fast on configuration the agent cannot run without.
func (c *Config) Validate() error {
	var missing []string
	need := func(v, name string) {
		if v == "" {
			missing = append(missing, name)
		}
	}

	need(c.Account.Username, "account.username")
	need(c.X.BaseURL, "x.base_url")
	need(c.X.BearerToken, "x.bearer_token (X_BEARER_TOKEN)")
	need(c.LLM.Chat.Provider, "llm.chat.provider")
	need(c.LLM.Chat.APIKey, "llm.chat.api_key (LLM_API_KEY)")
	need(c.LLM.Completion.APIKey, "llm.completion.api_key (LLM_API_KEY)")
	need(c.LLM.Embeddings.APIKey, "llm.embeddings.api_key (OPENAI_API_KEY)")
	need(c.Store.Driver, "store.driver")
	if c.Wallet.Enabled {
		need(c.Wallet.RPCURL, "wallet.rpc_url (SOLANA_RPC_URL)")
		need(c.Wallet.PrivateKey, "wallet.private_key (SOLANA_PRIVATE_KEY)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingConfig, missing)
	}

	if c.LLM.Embeddings.Dimension <= 0 {
		return fmt.Errorf("llm.embeddings.dimension must be positive")
	}
	if c.Policy.PublishThreshold < MinSignificance || c.Policy.PublishThreshold > MaxSignificance {
		return fmt.Errorf("policy.publish_threshold out of range: %d", c.Policy.PublishThreshold)
	}
	if c.Policy.StoreThreshold < MinSignificance || c.Policy.StoreThreshold > MaxSignificance {
		return fmt.Errorf("policy.store_threshold out of range: %d", c.Policy.StoreThreshold)
	}
	if c.Schedule.ActiveMax < c.Schedule.ActiveMin || c.Schedule.IntervalMax < c.Schedule.IntervalMin {
		return fmt.Errorf("schedule: max below min")
	}
	if c.Schedule.IntervalMin <= 0 {
		return fmt.Errorf("schedule.interval_min must be positive")
	}
	return nil
}

func (p ModelParams) ChatRequest(timeout time.Duration, messages ...Message) ChatRequest {
	return ChatRequest{
		Model:       p.Model,
		Messages:    messages,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
		TopP:        p.TopP,
		Stream:      p.Stream,
		Timeout:     timeout,
	}
}

func (p ModelParams) CompletionRequest(timeout time.Duration, prompt string) CompletionRequest {
	return CompletionRequest{
		Model:       p.Model,
		Prompt:      prompt,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
		TopP:        p.TopP,
		TopK:        p.TopK,
		Stop:        p.Stop,
		Timeout:     timeout,
	}
}
