package internal

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ReplyPolicy decides whether an unseen item deserves an answer.
type ReplyPolicy int

const (
	// PolicyAlways answers every unseen, unmuted item.
	PolicyAlways ReplyPolicy = iota
	// PolicyPriority answers only while the agent's reply count to the
	// author is below the cap.
	PolicyPriority
)

func (p ReplyPolicy) String() string {
	if p == PolicyPriority {
		return "priority"
	}
	return "always"
}

// PostBudget reports whether another post may go out today.
type PostBudget interface {
	Allow() bool
}

type ResponderConfig struct {
	Self            User
	PriorityAuthors []string
	ReplyCap        int
	Interval        time.Duration
	RecentPosts     int
	Timeout         time.Duration
	Reply           ModelParams
	Conversation    ModelParams
	PriorityReply   ModelParams
}

func DefaultResponderConfig(cfg *Config) ResponderConfig {
	return ResponderConfig{
		Self:            User{Username: cfg.Account.Username, ExternalID: cfg.Account.UserID, Email: cfg.Account.Email},
		PriorityAuthors: cfg.Policy.PriorityAuthors,
		ReplyCap:        cfg.Policy.ReplyCap,
		Interval:        cfg.Policy.ReplyInterval,
		RecentPosts:     cfg.Policy.RecentPosts,
		Timeout:         cfg.LLM.Timeout,
		Reply:           cfg.Stage(StageReply),
		Conversation:    cfg.Stage(StageConversation),
		PriorityReply:   cfg.Stage(StagePriorityReply),
	}
}

// Responder answers mentions and priority-author posts. Both paths share one
// ordering per item: dedup check, mute and policy checks, reply generation,
// mark processed, send, persist.
type Responder struct {
	social   SocialNetwork
	store    Store
	dedup    *DedupGate
	caller   *LLMCaller
	persona  *PersonaStore
	mute     *MuteList
	budget   PostBudget
	cfg      ResponderConfig
	clock    Clock
	logger   *zap.Logger
	metrics  *Metrics
	priority map[string]bool
}

func NewResponder(social SocialNetwork, store Store, caller *LLMCaller, persona *PersonaStore, mute *MuteList, budget PostBudget, cfg ResponderConfig, clock Clock, logger *zap.Logger, metrics *Metrics) *Responder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = NewRealClock()
	}
	priority := make(map[string]bool, len(cfg.PriorityAuthors))
	for _, a := range cfg.PriorityAuthors {
		priority[strings.ToLower(a)] = true
	}
	return &Responder{
		social:   social,
		store:    store,
		dedup:    NewDedupGate(store),
		caller:   caller,
		persona:  persona,
		mute:     mute,
		budget:   budget,
		cfg:      cfg,
		clock:    clock,
		logger:   logger.Named("responder"),
		metrics:  metrics,
		priority: priority,
	}
}

func (r *Responder) IsPriority(username string) bool {
	return r.priority[strings.ToLower(username)]
}

// RespondToNotifications answers items under PolicyAlways and returns the
// number of replies sent.
func (r *Responder) RespondToNotifications(ctx context.Context, items []Notification) (int, error) {
	return r.respondAll(ctx, items, PolicyAlways)
}

// RespondToPriorityAuthors answers mentions by priority authors. Without
// any, it falls back to the authors' own timelines.
func (r *Responder) RespondToPriorityAuthors(ctx context.Context) (int, error) {
	if len(r.priority) == 0 {
		return 0, nil
	}

	mentions, err := r.social.Mentions(ctx)
	if err != nil {
		return 0, fmt.Errorf("priority mentions: %w", err)
	}

	var items []Notification
	for _, n := range mentions {
		if r.IsPriority(n.AuthorUsername) {
			items = append(items, n)
		}
	}

	if len(items) == 0 {
		for _, author := range r.cfg.PriorityAuthors {
			timeline, err := r.social.UserTimeline(ctx, author)
			if err != nil {
				if errors.Is(err, ErrRateLimited) {
					return 0, err
				}
				r.logger.Warn("priority timeline failed", zap.String("author", author), zap.Error(err))
				continue
			}
			items = append(items, timeline...)
		}
	}

	return r.respondAll(ctx, items, PolicyPriority)
}

func (r *Responder) respondAll(ctx context.Context, items []Notification, policy ReplyPolicy) (int, error) {
	sent := 0
	var errs []error
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if r.budget != nil && !r.budget.Allow() {
			r.logger.Warn("daily post budget exhausted, stopping replies", zap.Int("sent", sent))
			return sent, ErrDailyLimit
		}

		ok, err := r.respond(ctx, item, policy, sent > 0)
		if err != nil {
			r.logger.Error("reply failed",
				zap.String("external_id", item.ExternalID),
				zap.String("author", item.AuthorUsername),
				zap.Error(err))
			errs = append(errs, err)
			if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrDailyLimit) {
				break
			}
			continue
		}
		if ok {
			sent++
		}
	}
	return sent, errors.Join(errs...)
}

// respond handles one item and reports whether a reply was sent. pace
// delays the send by the configured interval.
func (r *Responder) respond(ctx context.Context, item Notification, policy ReplyPolicy, pace bool) (bool, error) {
	if item.ExternalID == "" {
		return false, nil
	}
	log := r.logger.With(
		zap.String("external_id", item.ExternalID),
		zap.String("author", item.AuthorUsername),
		zap.Stringer("policy", policy))

	done, err := r.dedup.IsProcessed(ctx, item.ExternalID)
	if err != nil {
		return false, err
	}
	if done {
		log.Debug("already processed")
		return false, nil
	}

	reason, err := r.skipReason(ctx, item, policy)
	if err != nil {
		return false, err
	}
	if reason != "" {
		log.Info("skipping item", zap.String("reason", reason))
		return false, r.dedup.MarkProcessed(ctx, item.ExternalID)
	}

	text, genErr := r.generate(ctx, item, policy)
	// Unanswered items stay unmarked so the next cycle can pick them up.
	if genErr == nil && r.budget != nil && !r.budget.Allow() {
		return false, ErrDailyLimit
	}

	if err := r.dedup.MarkProcessed(ctx, item.ExternalID); err != nil {
		return false, err
	}
	if genErr != nil {
		log.Warn("no reply generated", zap.Error(genErr))
		return false, nil
	}

	if pace {
		if err := Sleep(ctx, r.clock, r.cfg.Interval); err != nil {
			return false, err
		}
	}

	replyID, err := r.social.Reply(ctx, text, item.ExternalID)
	if err != nil {
		return false, fmt.Errorf("send reply to %s: %w", item.ExternalID, err)
	}
	r.metrics.replied()
	log.Info("reply sent", zap.String("reply_id", replyID))

	if err := r.persist(ctx, item, text, replyID); err != nil {
		log.Error("persist reply", zap.Error(err))
	}
	return true, nil
}

func (r *Responder) skipReason(ctx context.Context, item Notification, policy ReplyPolicy) (string, error) {
	if strings.EqualFold(item.AuthorUsername, r.cfg.Self.Username) {
		return "own post", nil
	}
	if r.mute.Muted(item.AuthorUsername) {
		return "muted", nil
	}
	if policy == PolicyPriority {
		n, err := r.store.CountRepliesTo(ctx, r.cfg.Self.Username, item.AuthorUsername)
		if err != nil {
			return "", err
		}
		if n >= r.cfg.ReplyCap {
			return "reply cap reached", nil
		}
	}
	return "", nil
}

func (r *Responder) generate(ctx context.Context, item Notification, policy ReplyPolicy) (string, error) {
	var (
		msgs   []Message
		params ModelParams
	)

	history, err := r.thread(ctx, item)
	if err != nil {
		return "", err
	}

	if len(history) > 0 {
		system, err := r.persona.Render(PromptConversation, nil)
		if err != nil {
			return "", err
		}
		msgs = append(msgs, SystemMessage(system))
		msgs = append(msgs, ConversationMessages(history, r.cfg.Self.Username)...)
		msgs = append(msgs, UserMessage(item.Text))
		params = r.cfg.Conversation
	} else {
		system, err := r.persona.Render(PromptReply, nil)
		if err != nil {
			return "", err
		}
		msgs = append(msgs, SystemMessage(system))
		params = r.cfg.Reply
		if policy == PolicyPriority {
			extra, err := r.priorityContext(ctx)
			if err != nil {
				return "", err
			}
			msgs = append(msgs, extra...)
			params = r.cfg.PriorityReply
		}
		msgs = append(msgs, UserMessage(fmt.Sprintf("Tweet: '%s'", item.Text)))
	}

	text, err := r.caller.Call(ctx, params.ChatRequest(r.cfg.Timeout, msgs...))
	if err != nil {
		return "", err
	}
	text = CleanPost(text)
	if text == "" {
		return "", ErrEmptyContent
	}
	return text, nil
}

func (r *Responder) thread(ctx context.Context, item Notification) ([]*Post, error) {
	if item.ConversationID == "" || item.ConversationID == item.ExternalID {
		return nil, nil
	}
	return ConversationHistory(ctx, r.store, item.ConversationID)
}

func (r *Responder) priorityContext(ctx context.Context) ([]Message, error) {
	recent, err := r.store.RecentPostsBy(ctx, r.cfg.Self.Username, r.cfg.RecentPosts)
	if err != nil {
		return nil, err
	}
	memories, err := r.store.RecentLongTerm(ctx, DefaultRetrieveK)
	if err != nil {
		return nil, err
	}

	var msgs []Message
	for _, p := range slices.Backward(recent) {
		msgs = append(msgs, AssistantMessage(p.Content))
	}
	for _, m := range memories {
		msgs = append(msgs, AssistantMessage(m.Content))
	}
	return msgs, nil
}

// persist records the answered item, the reply edge, the author and a
// short-term memory of what was said.
func (r *Responder) persist(ctx context.Context, item Notification, text, replyID string) error {
	author := User{ExternalID: item.AuthorID, Username: item.AuthorUsername}
	if author.Username != "" {
		if err := r.store.EnsureUser(ctx, author); err != nil {
			return err
		}
	}

	parent, err := r.ingest(ctx, item)
	if err != nil {
		return err
	}

	reply, err := NewPost(r.cfg.Self, text, PostReply)
	if err != nil {
		return err
	}
	reply.ExternalID = replyID
	reply.ParentID = parent.ID
	reply.CreatedAt = r.clock.Now().UTC()
	if err := r.store.SavePost(ctx, reply); err != nil {
		return err
	}

	mem := NewShortTermMemory(text)
	mem.CreatedAt = reply.CreatedAt
	return r.store.SaveShortTerm(ctx, mem)
}

// ingest stores item as a Post unless it is already known. Items inside a
// known thread hang off the thread's root.
func (r *Responder) ingest(ctx context.Context, item Notification) (*Post, error) {
	existing, err := r.store.GetPostByExternalID(ctx, item.ExternalID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	post, err := NewPost(User{ExternalID: item.AuthorID, Username: item.AuthorUsername}, item.Text, PostOriginal)
	if err != nil {
		return nil, err
	}
	post.ExternalID = item.ExternalID
	if !item.CreatedAt.IsZero() {
		post.CreatedAt = item.CreatedAt.UTC()
	}

	if item.ConversationID != "" && item.ConversationID != item.ExternalID {
		root, err := r.store.GetPostByExternalID(ctx, item.ConversationID)
		switch {
		case err == nil:
			post.Type = PostReply
			post.ParentID = root.ID
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
	}

	if err := r.store.SavePost(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}
