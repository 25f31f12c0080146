package v1

import (
	"context"
	"fmt"
	"os"

	"github.com/4thel00z/chirp/internal"
)

// ErrMissingConfig is returned by New when required settings are absent.
var ErrMissingConfig = internal.ErrMissingConfig

// Client provides programmatic access to an agent's data directory.
type Client struct {
	agent *internal.Agent
}

// New loads the configuration of the resolved scope and wires the agent.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{getenv: os.Getenv}
	for _, opt := range opts {
		opt(cfg)
	}

	scope := internal.NewScopeResolver().Resolve(cfg.scope)
	agentCfg, err := internal.LoadConfig(scope)
	if err != nil {
		return nil, err
	}
	agentCfg.ApplyEnv(cfg.getenv)

	agent, err := internal.BuildAgent(context.Background(), agentCfg, scope, internal.AgentOptions{
		Logger:         cfg.logger,
		Registerer:     cfg.registerer,
		SkipValidation: cfg.readOnly,
	})
	if err != nil {
		return nil, err
	}

	return &Client{agent: agent}, nil
}

// DataDir is the data directory the client operates on.
func (c *Client) DataDir() string {
	return c.agent.Scope.DataPath
}

// RunCycle runs one pipeline cycle. The error joins every step failure; the
// report is complete either way.
func (c *Client) RunCycle(ctx context.Context) (CycleReport, error) {
	r := c.agent.Pipeline.RunCycle(ctx)

	report := CycleReport{
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Content:     r.Content,
		Stored:      r.Stored,
		PublishedID: r.PublishedID,
		Unpublished: r.Unpublished,
		Replies:     r.Replies,
		Transfers:   r.Transfers,
		Follows:     r.Follows,
	}
	if r.Score != internal.NoScore {
		score := r.Score
		report.Score = &score
	}
	for _, e := range r.Errors {
		report.Errors = append(report.Errors, StepError{Step: e.Step, Message: e.Err.Error()})
	}
	return report, r.Err()
}

// Respond answers unseen mentions and priority authors and returns the
// number of replies sent.
func (c *Client) Respond(ctx context.Context) (int, error) {
	return c.agent.Respond(ctx)
}

// Search returns the k long-term memories closest to query.
func (c *Client) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	scored, err := c.agent.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	results := make([]SearchResult, 0, len(scored))
	for _, s := range scored {
		results = append(results, SearchResult{Memory: toMemory(s.Memory), Score: s.Score})
	}
	return results, nil
}

// Memories returns the newest long-term memories.
func (c *Client) Memories(ctx context.Context, limit int) ([]Memory, error) {
	mems, err := c.agent.Memories.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("memories: %w", err)
	}

	out := make([]Memory, 0, len(mems))
	for _, m := range mems {
		out = append(out, toMemory(m))
	}
	return out, nil
}

// RecentPosts returns the agent's own newest posts.
func (c *Client) RecentPosts(ctx context.Context, limit int) ([]Post, error) {
	posts, err := c.agent.Store.RecentPostsBy(ctx, c.agent.Config.Account.Username, limit)
	if err != nil {
		return nil, fmt.Errorf("recent posts: %w", err)
	}

	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		out = append(out, Post{
			ID:         p.ID,
			ExternalID: p.ExternalID,
			Author:     p.AuthorUsername,
			Content:    p.Content,
			Reply:      p.IsReply(),
			ParentID:   p.ParentID,
			CreatedAt:  p.CreatedAt,
		})
	}
	return out, nil
}

// Close releases the store.
func (c *Client) Close() error {
	return c.agent.Close()
}

func toMemory(m *internal.LongTermMemory) Memory {
	return Memory{
		ID:           m.ID,
		Content:      m.Content,
		Significance: m.Significance,
		CreatedAt:    m.CreatedAt,
	}
}
