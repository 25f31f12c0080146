package internal

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
)

const (
	StepFetchOwnContext    = "fetch_own_context"
	StepFetchNotifications = "fetch_notifications"
	StepDedupFilter        = "dedup_filter"
	StepRespondToMentions  = "respond_to_mentions"
	StepDedupMark          = "dedup_mark"
	StepWalletDecision     = "wallet_decision"
	StepFollowDecision     = "follow_decision"
	StepShortTermMemory    = "short_term_memory"
	StepEmbed              = "embed"
	StepRetrieveLongTerm   = "retrieve_long_term"
	StepGenerateContent    = "generate_content"
	StepScoreSignificance  = "score_significance"
	StepStoreLongTerm      = "store_long_term"
	StepPublish            = "publish"
	StepRespondToPriority  = "respond_to_priority_authors"
)

// NoScore marks a cycle whose content was never scored.
const NoScore = -1

const (
	UnpublishedLowScore    = "score below threshold"
	UnpublishedUnoriginal  = "too similar to a recent post"
	UnpublishedNoContent   = "no content"
	UnpublishedScoreFailed = "scoring failed"
)

// StepError is a failure caught at a step boundary.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// CycleReport summarises one pass through the pipeline.
type CycleReport struct {
	StartedAt       time.Time
	FinishedAt      time.Time
	RecentPosts     int
	Notifications   int
	Unseen          int
	ShortTermMemory string
	Retrieved       int
	Content         string
	Score           int
	Stored          bool
	PublishedID     string
	Unpublished     string
	Transfers       int
	Follows         []string
	Replies         int
	Errors          []*StepError
}

func (r *CycleReport) Err() error {
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

func (r *CycleReport) Failed(step string) bool {
	for _, e := range r.Errors {
		if e.Step == step {
			return true
		}
	}
	return false
}

type PipelineConfig struct {
	Self             User
	PublishThreshold int
	StoreThreshold   int
	RecentPosts      int
	RetrieveK        int
	ReplyToMentions  bool
}

func DefaultPipelineConfig(cfg *Config) PipelineConfig {
	return PipelineConfig{
		Self:             User{Username: cfg.Account.Username, ExternalID: cfg.Account.UserID, Email: cfg.Account.Email},
		PublishThreshold: cfg.Policy.PublishThreshold,
		StoreThreshold:   cfg.Policy.StoreThreshold,
		RecentPosts:      cfg.Policy.RecentPosts,
		RetrieveK:        cfg.Policy.RetrieveK,
		ReplyToMentions:  cfg.Policy.ReplyToMentions,
	}
}

// PipelineDeps are the collaborators of a Pipeline. Wallet and Follow may be
// nil to disable those steps.
type PipelineDeps struct {
	Store     Store
	Social    SocialNetwork
	Fetcher   *ContextFetcher
	Responder *Responder
	Wallet    *WalletDecider
	Follow    *FollowDecider
	ShortTerm *ShortTermMemoryGenerator
	Embedder  Embedder
	Memories  *LongTermMemoryStore
	Generator *ContentGenerator
	Scorer    *SignificanceScorer
	Guard     *OriginalityGuard
	Mute      *MuteList
	Clock     Clock
	Logger    *zap.Logger
	Metrics   *Metrics
}

// Pipeline runs one cycle of the agent. Steps run strictly in order and each
// one is a failure boundary: errors and panics are recorded and the cycle
// goes on with the step's zero value.
type Pipeline struct {
	PipelineDeps
	cfg    PipelineConfig
	dedup  *DedupGate
	logger *zap.Logger
}

func NewPipeline(deps PipelineDeps, cfg PipelineConfig) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = NewRealClock()
	}
	return &Pipeline{
		PipelineDeps: deps,
		cfg:          cfg,
		dedup:        NewDedupGate(deps.Store),
		logger:       logger.Named("pipeline"),
	}
}

func (p *Pipeline) step(ctx context.Context, report *CycleReport, name string, fn func(ctx context.Context) error) (ok bool) {
	start := p.Clock.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("step panicked",
				zap.String("step", name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			p.fail(report, name, fmt.Errorf("panic: %v", r))
			ok = false
		}
	}()

	if err := fn(ctx); err != nil {
		p.logger.Warn("step failed", zap.String("step", name), zap.Error(err))
		p.fail(report, name, err)
		return false
	}
	p.logger.Debug("step done", zap.String("step", name), zap.Duration("took", p.Clock.Now().Sub(start)))
	return true
}

func (p *Pipeline) fail(report *CycleReport, name string, err error) {
	report.Errors = append(report.Errors, &StepError{Step: name, Err: err})
	p.Metrics.stepFailed(name)
}

func (p *Pipeline) RunCycle(ctx context.Context) CycleReport {
	report := CycleReport{StartedAt: p.Clock.Now(), Score: NoScore}
	defer func() {
		report.FinishedAt = p.Clock.Now()
		outcome := "ok"
		if len(report.Errors) > 0 {
			outcome = "degraded"
		}
		p.Metrics.cycle(outcome)
		p.logger.Info("cycle finished",
			zap.String("outcome", outcome),
			zap.Int("score", report.Score),
			zap.Bool("stored", report.Stored),
			zap.String("published_id", report.PublishedID),
			zap.Int("replies", report.Replies),
			zap.Int("transfers", report.Transfers),
			zap.Int("step_failures", len(report.Errors)),
			zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)))
	}()

	var recent []*Post
	p.step(ctx, &report, StepFetchOwnContext, func(ctx context.Context) error {
		var err error
		recent, err = p.Fetcher.RecentPosts(ctx, p.cfg.RecentPosts)
		report.RecentPosts = len(recent)
		return err
	})

	var items []Notification
	p.step(ctx, &report, StepFetchNotifications, func(ctx context.Context) error {
		var err error
		items, err = p.Fetcher.ExternalNotifications(ctx)
		report.Notifications = len(items)
		return err
	})

	var unseen, consumed []Notification
	p.step(ctx, &report, StepDedupFilter, func(ctx context.Context) error {
		var err error
		unseen, err = p.dedup.Unseen(ctx, items)
		if err != nil {
			unseen = nil
			return err
		}
		for _, n := range unseen {
			if p.Responder != nil && p.Responder.IsPriority(n.AuthorUsername) {
				continue
			}
			consumed = append(consumed, n)
		}
		report.Unseen = len(unseen)
		return nil
	})

	// A reply run cut short by a post budget or rate limit leaves the rest
	// unmarked; the responder has already marked what it handled.
	markConsumed := true
	if p.cfg.ReplyToMentions && p.Responder != nil && len(consumed) > 0 {
		p.step(ctx, &report, StepRespondToMentions, func(ctx context.Context) error {
			n, err := p.Responder.RespondToNotifications(ctx, consumed)
			report.Replies += n
			if errors.Is(err, ErrDailyLimit) || errors.Is(err, ErrRateLimited) {
				markConsumed = false
			}
			return err
		})
	}

	if markConsumed && len(consumed) > 0 {
		p.step(ctx, &report, StepDedupMark, func(ctx context.Context) error {
			var errs []error
			for _, n := range consumed {
				errs = append(errs, p.dedup.MarkProcessed(ctx, n.ExternalID))
			}
			return errors.Join(errs...)
		})
	}

	var audible []Notification
	for _, n := range unseen {
		if !p.Mute.Muted(n.AuthorUsername) {
			audible = append(audible, n)
		}
	}
	texts := NotificationTexts(audible)

	if len(audible) > 0 && p.Wallet != nil {
		p.step(ctx, &report, StepWalletDecision, func(ctx context.Context) error {
			n, err := p.Wallet.Run(ctx, texts)
			report.Transfers = n
			return err
		})
	}

	if len(audible) > 0 && p.Follow != nil {
		p.step(ctx, &report, StepFollowDecision, func(ctx context.Context) error {
			followed, err := p.Follow.Run(ctx, audible)
			report.Follows = followed
			return err
		})
	}

	report.ShortTermMemory = ShortTermFallback
	p.step(ctx, &report, StepShortTermMemory, func(ctx context.Context) error {
		report.ShortTermMemory = p.ShortTerm.Summarize(ctx, recent, texts)
		mem := NewShortTermMemory(report.ShortTermMemory)
		mem.CreatedAt = p.Clock.Now().UTC()
		return p.Store.SaveShortTerm(ctx, mem)
	})

	var query Embedding
	embedded := p.step(ctx, &report, StepEmbed, func(ctx context.Context) error {
		var err error
		query, err = p.Embedder.Embed(ctx, report.ShortTermMemory)
		return err
	})

	var memories []ScoredMemory
	if embedded {
		p.step(ctx, &report, StepRetrieveLongTerm, func(ctx context.Context) error {
			var err error
			memories, err = p.Memories.RetrieveRelevant(ctx, query, p.cfg.RetrieveK)
			if err != nil {
				memories = nil
			}
			report.Retrieved = len(memories)
			return err
		})
	}

	p.step(ctx, &report, StepGenerateContent, func(ctx context.Context) error {
		content, err := p.Generator.Generate(ctx, GenerationInput{
			ShortTermMemory:  report.ShortTermMemory,
			LongTermMemories: memories,
			RecentPosts:      recent,
			ExternalContext:  texts,
		})
		report.Content = content
		return err
	})

	if report.Content != "" {
		p.step(ctx, &report, StepScoreSignificance, func(ctx context.Context) error {
			score, err := p.Scorer.Score(ctx, report.Content)
			if err != nil {
				return err
			}
			report.Score = score
			p.Metrics.score(score)
			return nil
		})
	}

	switch {
	case report.Content == "":
		report.Unpublished = UnpublishedNoContent
	case report.Score == NoScore:
		report.Unpublished = UnpublishedScoreFailed
	default:
		if report.Score >= p.cfg.StoreThreshold {
			p.step(ctx, &report, StepStoreLongTerm, func(ctx context.Context) error {
				emb, err := p.Embedder.Embed(ctx, report.Content)
				if err != nil {
					return err
				}
				if _, err := p.Memories.Store(ctx, report.Content, emb, report.Score); err != nil {
					return err
				}
				report.Stored = true
				return nil
			})
		}

		if report.Score >= p.cfg.PublishThreshold {
			p.step(ctx, &report, StepPublish, func(ctx context.Context) error {
				return p.publish(ctx, &report, recent)
			})
		} else {
			report.Unpublished = UnpublishedLowScore
		}
	}

	if p.Responder != nil {
		p.step(ctx, &report, StepRespondToPriority, func(ctx context.Context) error {
			n, err := p.Responder.RespondToPriorityAuthors(ctx)
			report.Replies += n
			return err
		})
	}

	return report
}

func (p *Pipeline) publish(ctx context.Context, report *CycleReport, recent []*Post) error {
	if ok, sim := p.Guard.Check(report.Content, recent); !ok {
		p.logger.Info("not publishing, too similar to a recent post", zap.Float64("similarity", sim))
		report.Unpublished = UnpublishedUnoriginal
		return nil
	}

	id, err := p.Social.Post(ctx, report.Content)
	if err != nil {
		return err
	}
	report.PublishedID = id
	p.Metrics.published()
	p.logger.Info("published", zap.String("external_id", id), zap.Int("score", report.Score))

	post, err := NewPost(p.cfg.Self, report.Content, PostOriginal)
	if err != nil {
		return err
	}
	post.ExternalID = id
	post.CreatedAt = p.Clock.Now().UTC()
	if err := p.Store.SavePost(ctx, post); err != nil {
		return fmt.Errorf("save published post: %w", err)
	}
	return p.Store.EnsureUser(ctx, p.cfg.Self)
}
