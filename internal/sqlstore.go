package internal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		username    TEXT PRIMARY KEY,
		external_id TEXT NOT NULL DEFAULT '',
		email       TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS posts (
		id              TEXT PRIMARY KEY,
		external_id     TEXT NOT NULL DEFAULT '',
		author_id       TEXT NOT NULL DEFAULT '',
		author_username TEXT NOT NULL,
		content         TEXT NOT NULL,
		type            TEXT NOT NULL,
		parent_id       TEXT NOT NULL DEFAULT '',
		created_at      BIGINT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS posts_external_id ON posts (external_id) WHERE external_id <> ''`,
	`CREATE INDEX IF NOT EXISTS posts_author ON posts (author_username, created_at)`,
	`CREATE INDEX IF NOT EXISTS posts_parent ON posts (parent_id)`,
	`CREATE TABLE IF NOT EXISTS processed_items (
		external_id  TEXT PRIMARY KEY,
		processed_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS short_term_memories (
		id         TEXT PRIMARY KEY,
		content    TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS long_term_memories (
		id           TEXT PRIMARY KEY,
		content      TEXT NOT NULL,
		embedding    TEXT NOT NULL,
		dimension    INTEGER NOT NULL,
		model        TEXT NOT NULL DEFAULT '',
		significance INTEGER NOT NULL,
		created_at   BIGINT NOT NULL
	)`,
}

var _ Store = (*SQLStore)(nil)

// SQLStore persists agent state through database/sql. Queries are written
// with ? placeholders and rebound for postgres.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

func OpenStore(ctx context.Context, dialect, dsn string) (*SQLStore, error) {
	var driver string
	switch dialect {
	case DialectSQLite:
		driver = "sqlite"
	case DialectPostgres:
		driver = "pgx"
	default:
		return nil, fmt.Errorf("unsupported store dialect: %s", dialect)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}

	s := &SQLStore{db: db, dialect: dialect}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}
	if s.dialect == DialectSQLite {
		if _, err := s.db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
			return fmt.Errorf("configure sqlite: %w", err)
		}
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) error {
	_, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	return err
}

// Posts

const postColumns = `id, external_id, author_id, author_username, content, type, parent_id, created_at`

func (s *SQLStore) SavePost(ctx context.Context, p *Post) error {
	err := s.exec(ctx,
		`INSERT INTO posts (`+postColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ExternalID, p.AuthorID, p.AuthorUsername, p.Content, string(p.Type), p.ParentID, p.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save post: %w", err)
	}
	return nil
}

func (s *SQLStore) GetPostByExternalID(ctx context.Context, externalID string) (*Post, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+postColumns+` FROM posts WHERE external_id = ?`), externalID)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	return p, nil
}

func (s *SQLStore) RecentPostsBy(ctx context.Context, username string, limit int) ([]*Post, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT `+postColumns+` FROM posts WHERE author_username = ? ORDER BY created_at DESC, id DESC LIMIT ?`),
		username, limit)
	if err != nil {
		return nil, fmt.Errorf("recent posts: %w", err)
	}
	return collectPosts(rows)
}

func (s *SQLStore) Replies(ctx context.Context, parentID string) ([]*Post, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT `+postColumns+` FROM posts WHERE parent_id = ? ORDER BY created_at ASC, id ASC`),
		parentID)
	if err != nil {
		return nil, fmt.Errorf("replies: %w", err)
	}
	return collectPosts(rows)
}

func (s *SQLStore) CountRepliesTo(ctx context.Context, self, author string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT COUNT(*) FROM posts r
		JOIN posts p ON r.parent_id = p.id
		WHERE r.type = ? AND r.author_username = ? AND p.author_username = ?`),
		string(PostReply), self, author,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count replies: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*Post, error) {
	var (
		p       Post
		typ     string
		created int64
	)
	if err := row.Scan(&p.ID, &p.ExternalID, &p.AuthorID, &p.AuthorUsername, &p.Content, &typ, &p.ParentID, &created); err != nil {
		return nil, err
	}
	p.Type = PostType(typ)
	p.CreatedAt = time.Unix(0, created).UTC()
	return &p, nil
}

func collectPosts(rows *sql.Rows) ([]*Post, error) {
	defer rows.Close()
	var posts []*Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// Users

func (s *SQLStore) EnsureUser(ctx context.Context, u User) error {
	if u.Username == "" {
		return fmt.Errorf("ensure user: empty username")
	}
	err := s.exec(ctx, `
		INSERT INTO users (username, external_id, email) VALUES (?, ?, ?)
		ON CONFLICT (username) DO UPDATE SET external_id = excluded.external_id
		WHERE users.external_id = ''`,
		u.Username, u.ExternalID, u.Email)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT username, external_id, email FROM users WHERE username = ?`), username,
	).Scan(&u.Username, &u.ExternalID, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// Processed items

func (s *SQLStore) MarkProcessed(ctx context.Context, externalID string) error {
	err := s.exec(ctx,
		`INSERT INTO processed_items (external_id, processed_at) VALUES (?, ?) ON CONFLICT (external_id) DO NOTHING`,
		externalID, time.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

func (s *SQLStore) IsProcessed(ctx context.Context, externalID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT 1 FROM processed_items WHERE external_id = ?`), externalID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("is processed: %w", err)
	}
	return true, nil
}

// Memories

func (s *SQLStore) SaveShortTerm(ctx context.Context, m *ShortTermMemory) error {
	err := s.exec(ctx,
		`INSERT INTO short_term_memories (id, content, created_at) VALUES (?, ?, ?)`,
		m.ID, m.Content, m.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save short-term memory: %w", err)
	}
	return nil
}

func (s *SQLStore) RecentShortTerm(ctx context.Context, limit int) ([]*ShortTermMemory, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT id, content, created_at FROM short_term_memories ORDER BY created_at DESC, id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("recent short-term memories: %w", err)
	}
	defer rows.Close()

	var out []*ShortTermMemory
	for rows.Next() {
		var (
			m       ShortTermMemory
			created int64
		)
		if err := rows.Scan(&m.ID, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("scan short-term memory: %w", err)
		}
		m.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *SQLStore) SaveLongTerm(ctx context.Context, m *LongTermMemory) error {
	vec, err := json.Marshal(m.Embedding.Vector)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}
	err = s.exec(ctx, `
		INSERT INTO long_term_memories (id, content, embedding, dimension, model, significance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Content, string(vec), m.Embedding.Dimension, m.Embedding.Model, m.Significance, m.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save long-term memory: %w", err)
	}
	return nil
}

const longTermColumns = `id, content, embedding, dimension, model, significance, created_at`

func (s *SQLStore) ListLongTerm(ctx context.Context) ([]*LongTermMemory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+longTermColumns+` FROM long_term_memories ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list long-term memories: %w", err)
	}
	return collectLongTerm(rows)
}

func (s *SQLStore) RecentLongTerm(ctx context.Context, limit int) ([]*LongTermMemory, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT `+longTermColumns+` FROM long_term_memories ORDER BY created_at DESC, id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("recent long-term memories: %w", err)
	}
	return collectLongTerm(rows)
}

func collectLongTerm(rows *sql.Rows) ([]*LongTermMemory, error) {
	defer rows.Close()
	var out []*LongTermMemory
	for rows.Next() {
		var (
			m       LongTermMemory
			raw     string
			created int64
		)
		if err := rows.Scan(&m.ID, &m.Content, &raw, &m.Embedding.Dimension, &m.Embedding.Model, &m.Significance, &created); err != nil {
			return nil, fmt.Errorf("scan long-term memory: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &m.Embedding.Vector); err != nil {
			return nil, fmt.Errorf("decode embedding %s: %w", m.ID, err)
		}
		m.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, &m)
	}
	return out, rows.Err()
}
