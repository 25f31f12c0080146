package internal

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testDimension = 8

var errTransient = errors.New("connection reset by peer")

func setupStoreTest(t *testing.T) *SQLStore {
	t.Helper()
	store, err := OpenStore(context.Background(), DialectSQLite, filepath.Join(t.TempDir(), "chirp.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// stepClock never blocks: After moves time forward by d and fires at once.
type stepClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newStepClock(start time.Time) *stepClock {
	return &stepClock{now: start}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.slept = append(c.slept, d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *stepClock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

var testEpoch = time.Date(2024, 11, 5, 9, 0, 0, 0, time.UTC)

func noWaitPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, Retryable: IsTransient, Clock: newStepClock(testEpoch)}
}

// fakeChat answers by request model, so each pipeline stage can be scripted
// independently.
type fakeChat struct {
	mu      sync.Mutex
	answers map[string]func(ChatRequest) (string, error)
	calls   map[string]int
	reqs    []ChatRequest
}

func newFakeChat() *fakeChat {
	return &fakeChat{
		answers: map[string]func(ChatRequest) (string, error){},
		calls:   map[string]int{},
	}
}

func (f *fakeChat) on(model string, fn func(ChatRequest) (string, error)) *fakeChat {
	f.answers[model] = fn
	return f
}

func (f *fakeChat) say(model, text string) *fakeChat {
	return f.on(model, func(ChatRequest) (string, error) { return text, nil })
}

func (f *fakeChat) Chat(_ context.Context, req ChatRequest) (string, error) {
	f.mu.Lock()
	f.calls[req.Model]++
	f.reqs = append(f.reqs, req)
	fn := f.answers[req.Model]
	f.mu.Unlock()

	if fn == nil {
		return "", fmt.Errorf("no answer scripted for model %q", req.Model)
	}
	return fn(req)
}

func (f *fakeChat) StreamChat(ctx context.Context, req ChatRequest, onDelta func(string)) error {
	text, err := f.Chat(ctx, req)
	if err != nil {
		return err
	}
	for _, word := range strings.SplitAfter(text, " ") {
		onDelta(word)
	}
	return nil
}

func (f *fakeChat) Calls(model string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[model]
}

func (f *fakeChat) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeChat) Requests() []ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ChatRequest(nil), f.reqs...)
}

type fakeCompleter struct {
	mu      sync.Mutex
	answers []string
	errs    []error
	calls   int
}

func (f *fakeCompleter) Complete(_ context.Context, _ CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if len(f.answers) == 0 {
		return "", nil
	}
	return f.answers[min(i, len(f.answers)-1)], nil
}

func (f *fakeCompleter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// hashEmbedder maps text deterministically onto a testDimension vector.
type hashEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func hashVector(text string) []float32 {
	vec := make([]float32, testDimension)
	for i := range vec {
		h := fnv.New32a()
		fmt.Fprintf(h, "%d:%s", i, text)
		vec[i] = float32(h.Sum32()%1000)/1000 + 0.001
	}
	return vec
}

func (e *hashEmbedder) Embed(_ context.Context, text string) (Embedding, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return Embedding{}, e.err
	}
	return NewEmbedding(hashVector(text), "hash"), nil
}

func (e *hashEmbedder) Dimension() int {
	return testDimension
}

type sentReply struct {
	Text      string
	InReplyTo string
}

type fakeSocial struct {
	mu        sync.Mutex
	mentions  []Notification
	timelines map[string][]Notification
	posts     []string
	replies   []sentReply
	follows   []string
	postErr   error
	mentErr   error
	nextID    int
}

func newFakeSocial() *fakeSocial {
	return &fakeSocial{timelines: map[string][]Notification{}}
}

func (s *fakeSocial) id() string {
	s.nextID++
	return fmt.Sprintf("x-%d", s.nextID)
}

func (s *fakeSocial) Post(_ context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.postErr != nil {
		return "", s.postErr
	}
	s.posts = append(s.posts, text)
	return s.id(), nil
}

func (s *fakeSocial) Reply(_ context.Context, text, inReplyTo string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.postErr != nil {
		return "", s.postErr
	}
	s.replies = append(s.replies, sentReply{Text: text, InReplyTo: inReplyTo})
	return s.id(), nil
}

func (s *fakeSocial) Mentions(context.Context) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.mentions...), s.mentErr
}

func (s *fakeSocial) UserTimeline(_ context.Context, username string) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.timelines[username]...), nil
}

func (s *fakeSocial) Follow(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.follows = append(s.follows, username)
	return nil
}

func (s *fakeSocial) ResolveUserID(_ context.Context, username string) (string, error) {
	return "id-" + username, nil
}

func (s *fakeSocial) Posts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.posts...)
}

func (s *fakeSocial) Replies() []sentReply {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentReply(nil), s.replies...)
}

func (s *fakeSocial) Follows() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.follows...)
}

func testPersona() *PersonaStore {
	return StaticPersona(DefaultPersona())
}

// testStages gives every stage a model id equal to its name.
func testStages() map[string]ModelParams {
	stages := DefaultStages()
	for name, p := range stages {
		p.Model = name
		stages[name] = p
	}
	return stages
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Account = AccountConfig{Username: "aurora_terminal", UserID: "self-id"}
	cfg.LLM.Stages = testStages()
	cfg.LLM.Embeddings.Dimension = testDimension
	cfg.LLM.Timeout = 0
	cfg.Policy.ReplyInterval = 0
	cfg.Policy.DraftCooldown = 0
	cfg.Policy.PriorityAuthors = []string{"truth_terminal", "sama"}
	return cfg
}

func mention(id, author, text string) Notification {
	return Notification{
		ExternalID:     id,
		Text:           text,
		AuthorID:       "id-" + author,
		AuthorUsername: author,
		ConversationID: id,
		CreatedAt:      testEpoch,
	}
}
