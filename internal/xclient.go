package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	tweetFields   = "created_at,conversation_id,author_id"
	maxTimeline   = 20
	userCacheTTL  = 24 * time.Hour
	maxErrorBytes = 2048
)

type XClientConfig struct {
	BaseURL           string
	BearerToken       string
	Username          string
	UserID            string
	RequestsPerSecond float64
	DailyPostLimit    int
	Timeout           time.Duration
}

// XAPIError is a non-2xx answer from the X API.
type XAPIError struct {
	StatusCode int
	Body       string
}

func (e *XAPIError) Error() string {
	return fmt.Sprintf("x api: status %d: %s", e.StatusCode, e.Body)
}

func (e *XAPIError) HTTPStatus() int {
	return e.StatusCode
}

var _ SocialNetwork = (*XClient)(nil)

// XClient talks to the X API v2 with a user-context bearer token. Outbound
// requests are smoothed by a token bucket and posts are capped per day.
type XClient struct {
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	posts    *DailyCounter
	users    *cache.Cache
	username string
	userID   string
	clock    Clock
	logger   *zap.Logger

	mu           sync.Mutex
	last         RateLimitInfo
	blockedUntil time.Time
}

func NewXClient(ctx context.Context, cfg XClientConfig, clock Clock, logger *zap.Logger) *XClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = NewRealClock()
	}

	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.BearerToken,
		TokenType:   "Bearer",
	}))
	httpClient.Timeout = cfg.Timeout

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	daily := cfg.DailyPostLimit
	if daily <= 0 {
		daily = min(PerUserDailyLimit, PerAppDailyLimit)
	}

	return &XClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     httpClient,
		limiter:  rate.NewLimiter(limit, 1),
		posts:    NewDailyCounter(daily, clock),
		users:    cache.New(userCacheTTL, 0),
		username: cfg.Username,
		userID:   cfg.UserID,
		clock:    clock,
		logger:   logger.Named("x"),
	}
}

func (c *XClient) PostBudget() *DailyCounter {
	return c.posts
}

func (c *XClient) LastRateLimit() RateLimitInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// blocked reports how long requests stay suspended after a 429.
func (c *XClient) blocked(now time.Time) (RateLimitInfo, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, max(c.blockedUntil.Sub(now), 0)
}

func (c *XClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if info, wait := c.blocked(c.clock.Now()); wait > 0 {
		return &RateLimitError{Info: info, Wait: wait}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if info, ok := ParseRateLimit(resp.Header); ok {
		c.mu.Lock()
		c.last = info
		c.mu.Unlock()
		c.logger.Debug("rate limit",
			zap.String("path", path),
			zap.Int("limit", info.Limit),
			zap.Int("remaining", info.Remaining),
			zap.Time("reset", info.Reset))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		info, _ := ParseRateLimit(resp.Header)
		now := c.clock.Now()
		wait := info.Backoff(now)
		c.mu.Lock()
		c.blockedUntil = now.Add(wait)
		c.mu.Unlock()
		c.logger.Warn("rate limit reached", zap.String("path", path), zap.Duration("wait", wait))
		return &RateLimitError{Info: info, Wait: wait}
	}
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		return &XAPIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

type xTweet struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	AuthorID       string    `json:"author_id"`
	ConversationID string    `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
}

type xUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type xTimeline struct {
	Data     []xTweet `json:"data"`
	Includes struct {
		Users []xUser `json:"users"`
	} `json:"includes"`
}

func (t xTimeline) notifications() []Notification {
	names := make(map[string]string, len(t.Includes.Users))
	for _, u := range t.Includes.Users {
		names[u.ID] = u.Username
	}
	out := make([]Notification, 0, len(t.Data))
	for _, tw := range t.Data {
		out = append(out, Notification{
			ExternalID:     tw.ID,
			Text:           tw.Text,
			AuthorID:       tw.AuthorID,
			AuthorUsername: names[tw.AuthorID],
			ConversationID: tw.ConversationID,
			CreatedAt:      tw.CreatedAt,
		})
	}
	return out
}

type createTweetRequest struct {
	Text  string            `json:"text"`
	Reply *createTweetReply `json:"reply,omitempty"`
}

type createTweetReply struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type createTweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

func (c *XClient) createTweet(ctx context.Context, body createTweetRequest) (string, error) {
	if !c.posts.Allow() {
		return "", ErrDailyLimit
	}

	var res createTweetResponse
	if err := c.do(ctx, http.MethodPost, "/tweets", nil, body, &res); err != nil {
		return "", err
	}
	c.posts.Record()

	if res.Data.ID == "" {
		return "", fmt.Errorf("create tweet: %w", ErrEmptyResponse)
	}
	return res.Data.ID, nil
}

func (c *XClient) Post(ctx context.Context, text string) (string, error) {
	return c.createTweet(ctx, createTweetRequest{Text: text})
}

func (c *XClient) Reply(ctx context.Context, text, inReplyTo string) (string, error) {
	return c.createTweet(ctx, createTweetRequest{
		Text:  text,
		Reply: &createTweetReply{InReplyToTweetID: inReplyTo},
	})
}

func (c *XClient) ResolveUserID(ctx context.Context, username string) (string, error) {
	key := strings.ToLower(strings.TrimPrefix(username, "@"))
	if id, ok := c.users.Get(key); ok {
		return id.(string), nil
	}

	var res struct {
		Data xUser `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/users/by/username/"+url.PathEscape(key), nil, nil, &res); err != nil {
		return "", fmt.Errorf("resolve %s: %w", username, err)
	}
	if res.Data.ID == "" {
		return "", fmt.Errorf("resolve %s: %w", username, ErrNotFound)
	}

	c.users.Set(key, res.Data.ID, cache.DefaultExpiration)
	return res.Data.ID, nil
}

func (c *XClient) self(ctx context.Context) (string, error) {
	if c.userID != "" {
		return c.userID, nil
	}
	return c.ResolveUserID(ctx, c.username)
}

func timelineQuery() url.Values {
	q := url.Values{}
	q.Set("max_results", fmt.Sprint(maxTimeline))
	q.Set("expansions", "author_id")
	q.Set("user.fields", "username")
	q.Set("tweet.fields", tweetFields)
	return q
}

func (c *XClient) Mentions(ctx context.Context) ([]Notification, error) {
	id, err := c.self(ctx)
	if err != nil {
		return nil, err
	}

	var res xTimeline
	if err := c.do(ctx, http.MethodGet, "/users/"+id+"/mentions", timelineQuery(), nil, &res); err != nil {
		return nil, fmt.Errorf("mentions: %w", err)
	}
	return res.notifications(), nil
}

func (c *XClient) UserTimeline(ctx context.Context, username string) ([]Notification, error) {
	name := strings.ToLower(strings.TrimPrefix(username, "@"))
	id, err := c.ResolveUserID(ctx, name)
	if err != nil {
		return nil, err
	}

	var res xTimeline
	if err := c.do(ctx, http.MethodGet, "/users/"+id+"/tweets", timelineQuery(), nil, &res); err != nil {
		return nil, fmt.Errorf("timeline %s: %w", name, err)
	}

	out := res.notifications()
	for i := range out {
		if out[i].AuthorUsername == "" {
			out[i].AuthorUsername = name
		}
	}
	return out, nil
}

func (c *XClient) Follow(ctx context.Context, username string) error {
	self, err := c.self(ctx)
	if err != nil {
		return err
	}
	target, err := c.ResolveUserID(ctx, username)
	if err != nil {
		return err
	}

	body := map[string]string{"target_user_id": target}
	if err := c.do(ctx, http.MethodPost, "/users/"+self+"/following", nil, body, nil); err != nil {
		return fmt.Errorf("follow %s: %w", username, err)
	}
	return nil
}
