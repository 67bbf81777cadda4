/*
Package sqlitestore persists users, connection requests and messages in an embedded SQLite
database through sqlx and the pure Go modernc.org/sqlite driver.

Timestamps are stored as fixed-width UTC text so they sort and compare lexically. Multi-row
relationship mutations run in one transaction.
*/
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"pingup/internal/app/chat"
	"pingup/internal/app/graph"
	"pingup/internal/app/store"
	"pingup/internal/app/user"
)

// timeLayout is RFC 3339 with fixed nanoseconds; values are always UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Edge kinds stored in user_edges.
const (
	edgeFollowing   = "following"
	edgeFollowers   = "followers"
	edgeConnections = "connections"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id              TEXT PRIMARY KEY,
	username        TEXT NOT NULL,
	full_name       TEXT NOT NULL DEFAULT '',
	profile_picture TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS user_edges (
	user_id  TEXT NOT NULL,
	kind     TEXT NOT NULL,
	other_id TEXT NOT NULL,
	PRIMARY KEY (user_id, kind, other_id)
);

CREATE TABLE IF NOT EXISTS connection_requests (
	id           TEXT PRIMARY KEY,
	pair_key     TEXT NOT NULL UNIQUE,
	from_user_id TEXT NOT NULL,
	to_user_id   TEXT NOT NULL,
	status       TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_requests_from ON connection_requests (from_user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_requests_to ON connection_requests (to_user_id, status);

CREATE TABLE IF NOT EXISTS messages (
	id           TEXT PRIMARY KEY,
	from_user_id TEXT NOT NULL,
	to_user_id   TEXT NOT NULL,
	text         TEXT NOT NULL DEFAULT '',
	media_type   TEXT NOT NULL DEFAULT '',
	media_url    TEXT NOT NULL DEFAULT '',
	media_key    TEXT NOT NULL DEFAULT '',
	seen         INTEGER NOT NULL DEFAULT 0,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages (from_user_id, to_user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_to ON messages (to_user_id, created_at);
`

// Store is the SQLite backend.
type Store struct {
	db *sqlx.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) time.Time {
	t, _ := time.Parse(timeLayout, v)
	return t
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// inTx runs fn in a transaction, committing when fn returns nil.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// --- users ---

type userRow struct {
	ID             string `db:"id"`
	Username       string `db:"username"`
	FullName       string `db:"full_name"`
	ProfilePicture string `db:"profile_picture"`
	CreatedAt      string `db:"created_at"`
}

func (r userRow) profile() user.Profile {
	return user.Profile{ID: r.ID, Username: r.Username, FullName: r.FullName, ProfilePicture: r.ProfilePicture}
}

type edgeRow struct {
	Kind    string `db:"kind"`
	OtherID string `db:"other_id"`
}

func (s *Store) UpsertProfile(ctx context.Context, p user.Profile, at time.Time) (user.User, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, full_name, profile_picture, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username = excluded.username,
			full_name = excluded.full_name,
			profile_picture = excluded.profile_picture`,
		p.ID, p.Username, p.FullName, p.ProfilePicture, formatTime(at))
	if err != nil {
		return user.User{}, fmt.Errorf("upsert user: %w", err)
	}
	return s.GetUser(ctx, p.ID)
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `SELECT id, username, full_name, profile_picture, created_at FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, store.ErrNotFound
	}
	if err != nil {
		return user.User{}, fmt.Errorf("get user: %w", err)
	}

	var edges []edgeRow
	if err := s.db.SelectContext(ctx, &edges, `SELECT kind, other_id FROM user_edges WHERE user_id = ? ORDER BY kind, other_id`, id); err != nil {
		return user.User{}, fmt.Errorf("get user edges: %w", err)
	}

	u := user.User{
		ID:             row.ID,
		Username:       row.Username,
		FullName:       row.FullName,
		ProfilePicture: row.ProfilePicture,
		Following:      []string{},
		Followers:      []string{},
		Connections:    []string{},
		CreatedAt:      parseTime(row.CreatedAt),
	}
	for _, e := range edges {
		switch e.Kind {
		case edgeFollowing:
			u.Following = append(u.Following, e.OtherID)
		case edgeFollowers:
			u.Followers = append(u.Followers, e.OtherID)
		case edgeConnections:
			u.Connections = append(u.Connections, e.OtherID)
		}
	}
	return u, nil
}

func (s *Store) Profiles(ctx context.Context, ids []string) (map[string]user.Profile, error) {
	out := make(map[string]user.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`SELECT id, username, full_name, profile_picture, created_at FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build profiles query: %w", err)
	}

	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select profiles: %w", err)
	}
	for _, r := range rows {
		out[r.ID] = r.profile()
	}
	return out, nil
}

// --- messages ---

type messageRow struct {
	ID        string `db:"id"`
	From      string `db:"from_user_id"`
	To        string `db:"to_user_id"`
	Text      string `db:"text"`
	MediaType string `db:"media_type"`
	MediaURL  string `db:"media_url"`
	MediaKey  string `db:"media_key"`
	Seen      bool   `db:"seen"`
	CreatedAt string `db:"created_at"`
}

func (r messageRow) message() chat.Message {
	m := chat.Message{
		ID:        r.ID,
		From:      r.From,
		To:        r.To,
		Text:      r.Text,
		Seen:      r.Seen,
		CreatedAt: parseTime(r.CreatedAt),
	}
	if r.MediaType != "" {
		m.Media = &chat.Media{Type: r.MediaType, URL: r.MediaURL, Key: r.MediaKey}
	}
	return m
}

func toMessages(rows []messageRow) []chat.Message {
	out := make([]chat.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.message())
	}
	return out
}

const messageColumns = `id, from_user_id, to_user_id, text, media_type, media_url, media_key, seen, created_at`

func (s *Store) CreateMessage(ctx context.Context, m chat.Message) error {
	row := messageRow{
		ID:        m.ID,
		From:      m.From,
		To:        m.To,
		Text:      m.Text,
		Seen:      m.Seen,
		CreatedAt: formatTime(m.CreatedAt),
	}
	if m.Media != nil {
		row.MediaType, row.MediaURL, row.MediaKey = m.Media.Type, m.Media.URL, m.Media.Key
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (:id, :from_user_id, :to_user_id, :text, :media_type, :media_url, :media_key, :seen, :created_at)`, row)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Store) Conversation(ctx context.Context, a, b string) ([]chat.Message, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+messageColumns+` FROM messages
		WHERE (from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?)
		ORDER BY created_at ASC, id ASC`, a, b, b, a)
	if err != nil {
		return nil, fmt.Errorf("select conversation: %w", err)
	}
	return toMessages(rows), nil
}

func (s *Store) MarkSeen(ctx context.Context, from, to string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET seen = 1 WHERE from_user_id = ? AND to_user_id = ? AND seen = 0`, from, to)
	if err != nil {
		return 0, fmt.Errorf("mark seen: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Inbox(ctx context.Context, userID string, limit int) ([]chat.Message, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+messageColumns+` FROM messages
		WHERE to_user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("select inbox: %w", err)
	}
	return toMessages(rows), nil
}

// --- connection requests ---

type requestRow struct {
	ID        string `db:"id"`
	PairKey   string `db:"pair_key"`
	From      string `db:"from_user_id"`
	To        string `db:"to_user_id"`
	Status    string `db:"status"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

func (r requestRow) request() graph.Request {
	return graph.Request{
		ID:        r.ID,
		From:      r.From,
		To:        r.To,
		Status:    graph.RequestStatus(r.Status),
		CreatedAt: parseTime(r.CreatedAt),
		UpdatedAt: parseTime(r.UpdatedAt),
	}
}

const requestColumns = `id, pair_key, from_user_id, to_user_id, status, created_at, updated_at`

func (s *Store) FindRequest(ctx context.Context, a, b string) (graph.Request, error) {
	var row requestRow
	err := s.db.GetContext(ctx, &row, `SELECT `+requestColumns+` FROM connection_requests WHERE pair_key = ?`, graph.PairKey(a, b))
	if errors.Is(err, sql.ErrNoRows) {
		return graph.Request{}, store.ErrNotFound
	}
	if err != nil {
		return graph.Request{}, fmt.Errorf("find request: %w", err)
	}
	return row.request(), nil
}

func (s *Store) CreateRequest(ctx context.Context, r graph.Request) error {
	row := requestRow{
		ID:        r.ID,
		PairKey:   graph.PairKey(r.From, r.To),
		From:      r.From,
		To:        r.To,
		Status:    string(r.Status),
		CreatedAt: formatTime(r.CreatedAt),
		UpdatedAt: formatTime(r.UpdatedAt),
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO connection_requests (`+requestColumns+`)
		VALUES (:id, :pair_key, :from_user_id, :to_user_id, :status, :created_at, :updated_at)`, row)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func (s *Store) CountRequestsSince(ctx context.Context, from string, since time.Time) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM connection_requests WHERE from_user_id = ? AND created_at >= ?`, from, formatTime(since))
	if err != nil {
		return 0, fmt.Errorf("count requests: %w", err)
	}
	return count, nil
}

func (s *Store) PendingRequestsTo(ctx context.Context, userID string) ([]graph.Request, error) {
	var rows []requestRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+requestColumns+` FROM connection_requests
		WHERE to_user_id = ? AND status = ?
		ORDER BY created_at ASC`, userID, string(graph.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("select pending requests: %w", err)
	}

	out := make([]graph.Request, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.request())
	}
	return out, nil
}

func (s *Store) DeletePendingRequest(ctx context.Context, from, to string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM connection_requests
		WHERE pair_key = ? AND from_user_id = ? AND to_user_id = ? AND status = ?`,
		graph.PairKey(from, to), from, to, string(graph.StatusPending))
	if err != nil {
		return false, fmt.Errorf("delete request: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// --- adjacency ---

func requireUsers(ctx context.Context, tx *sqlx.Tx, a, b string) error {
	var count int
	if err := tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM users WHERE id IN (?, ?)`, a, b); err != nil {
		return fmt.Errorf("check users: %w", err)
	}
	if count != 2 {
		return store.ErrNotFound
	}
	return nil
}

func addEdge(ctx context.Context, tx *sqlx.Tx, userID, kind, otherID string) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO user_edges (user_id, kind, other_id) VALUES (?, ?, ?)`, userID, kind, otherID)
	if err != nil {
		return false, fmt.Errorf("add %s edge: %w", kind, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) Follow(ctx context.Context, from, to string) (bool, error) {
	var added bool
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := requireUsers(ctx, tx, from, to); err != nil {
			return err
		}

		var err error
		if added, err = addEdge(ctx, tx, from, edgeFollowing, to); err != nil {
			return err
		}
		_, err = addEdge(ctx, tx, to, edgeFollowers, from)
		return err
	})
	return added, err
}

func (s *Store) Connect(ctx context.Context, id, a, b string, at time.Time) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := requireUsers(ctx, tx, a, b); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE connection_requests SET status = ?, updated_at = ?
			WHERE id = ? AND pair_key = ? AND status = ?`,
			string(graph.StatusAccepted), formatTime(at), id, graph.PairKey(a, b), string(graph.StatusPending))
		if err != nil {
			return fmt.Errorf("accept request: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}

		if _, err := addEdge(ctx, tx, a, edgeConnections, b); err != nil {
			return err
		}
		_, err = addEdge(ctx, tx, b, edgeConnections, a)
		return err
	})
}

func (s *Store) Disconnect(ctx context.Context, a, b string) (bool, error) {
	var removed bool
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := requireUsers(ctx, tx, a, b); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			DELETE FROM user_edges
			WHERE (user_id = ? AND other_id = ?) OR (user_id = ? AND other_id = ?)`, a, b, b, a)
		if err != nil {
			return fmt.Errorf("delete edges: %w", err)
		}
		edges, _ := res.RowsAffected()

		res, err = tx.ExecContext(ctx, `
			DELETE FROM connection_requests
			WHERE pair_key = ? AND ((from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?))`,
			graph.PairKey(a, b), a, b, b, a)
		if err != nil {
			return fmt.Errorf("delete request: %w", err)
		}
		requests, _ := res.RowsAffected()

		removed = edges > 0 || requests > 0
		return nil
	})
	return removed, err
}
