package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pingup/internal/app/chat"
	"pingup/internal/app/graph"
	"pingup/internal/app/store"
	"pingup/internal/app/user"
)

const (
	edgeFollowing   = "following"
	edgeFollowers   = "followers"
	edgeConnections = "connections"
)

// Store implements the user, message and connection stores on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an initialized pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// inTx runs fn in a transaction, committing when fn returns nil.
func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, fn)
}

// --- users ---

func (s *Store) UpsertProfile(ctx context.Context, p user.Profile, at time.Time) (user.User, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username, full_name, profile_picture, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			full_name = EXCLUDED.full_name,
			profile_picture = EXCLUDED.profile_picture`,
		p.ID, p.Username, p.FullName, p.ProfilePicture, at)
	if err != nil {
		return user.User{}, fmt.Errorf("upsert user: %w", err)
	}
	return s.GetUser(ctx, p.ID)
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	u := user.User{Following: []string{}, Followers: []string{}, Connections: []string{}}

	err := s.pool.QueryRow(ctx, `
		SELECT id, username, full_name, profile_picture, created_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Username, &u.FullName, &u.ProfilePicture, &u.CreatedAt)
	if err != nil {
		return user.User{}, translate(err)
	}

	rows, err := s.pool.Query(ctx, `SELECT kind, other_id FROM user_edges WHERE user_id = $1 ORDER BY kind, other_id`, id)
	if err != nil {
		return user.User{}, fmt.Errorf("get user edges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, other string
		if err := rows.Scan(&kind, &other); err != nil {
			return user.User{}, err
		}
		switch kind {
		case edgeFollowing:
			u.Following = append(u.Following, other)
		case edgeFollowers:
			u.Followers = append(u.Followers, other)
		case edgeConnections:
			u.Connections = append(u.Connections, other)
		}
	}
	return u, rows.Err()
}

func (s *Store) Profiles(ctx context.Context, ids []string) (map[string]user.Profile, error) {
	out := make(map[string]user.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT id, username, full_name, profile_picture FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("select profiles: %w", err)
	}

	profiles, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (user.Profile, error) {
		var p user.Profile
		err := row.Scan(&p.ID, &p.Username, &p.FullName, &p.ProfilePicture)
		return p, err
	})
	if err != nil {
		return nil, err
	}

	for _, p := range profiles {
		out[p.ID] = p
	}
	return out, nil
}

// --- messages ---

const messageColumns = `id, from_user_id, to_user_id, text, media_type, media_url, media_key, seen, created_at`

func scanMessage(row pgx.CollectableRow) (chat.Message, error) {
	var (
		m                             chat.Message
		mediaType, mediaURL, mediaKey string
	)
	if err := row.Scan(&m.ID, &m.From, &m.To, &m.Text, &mediaType, &mediaURL, &mediaKey, &m.Seen, &m.CreatedAt); err != nil {
		return chat.Message{}, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	if mediaType != "" {
		m.Media = &chat.Media{Type: mediaType, URL: mediaURL, Key: mediaKey}
	}
	return m, nil
}

func (s *Store) CreateMessage(ctx context.Context, m chat.Message) error {
	var mediaType, mediaURL, mediaKey string
	if m.Media != nil {
		mediaType, mediaURL, mediaKey = m.Media.Type, m.Media.URL, m.Media.Key
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.From, m.To, m.Text, mediaType, mediaURL, mediaKey, m.Seen, m.CreatedAt)
	if err != nil {
		if mapped := translate(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Store) Conversation(ctx context.Context, a, b string) ([]chat.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE (from_user_id = $1 AND to_user_id = $2) OR (from_user_id = $2 AND to_user_id = $1)
		ORDER BY created_at ASC, id ASC`, a, b)
	if err != nil {
		return nil, fmt.Errorf("select conversation: %w", err)
	}
	return pgx.CollectRows(rows, scanMessage)
}

func (s *Store) MarkSeen(ctx context.Context, from, to string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE messages SET seen = TRUE WHERE from_user_id = $1 AND to_user_id = $2 AND NOT seen`, from, to)
	if err != nil {
		return 0, fmt.Errorf("mark seen: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) Inbox(ctx context.Context, userID string, limit int) ([]chat.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE to_user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("select inbox: %w", err)
	}
	return pgx.CollectRows(rows, scanMessage)
}

// --- connection requests ---

const requestColumns = `id, from_user_id, to_user_id, status, created_at, updated_at`

func scanRequest(row pgx.CollectableRow) (graph.Request, error) {
	var (
		r      graph.Request
		status string
	)
	if err := row.Scan(&r.ID, &r.From, &r.To, &status, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return graph.Request{}, err
	}
	r.Status = graph.RequestStatus(status)
	r.CreatedAt, r.UpdatedAt = r.CreatedAt.UTC(), r.UpdatedAt.UTC()
	return r, nil
}

func (s *Store) FindRequest(ctx context.Context, a, b string) (graph.Request, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+requestColumns+` FROM connection_requests WHERE pair_key = $1`, graph.PairKey(a, b))
	if err != nil {
		return graph.Request{}, fmt.Errorf("find request: %w", err)
	}
	r, err := pgx.CollectExactlyOneRow(rows, scanRequest)
	if err != nil {
		return graph.Request{}, translate(err)
	}
	return r, nil
}

func (s *Store) CreateRequest(ctx context.Context, r graph.Request) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO connection_requests (id, pair_key, from_user_id, to_user_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, graph.PairKey(r.From, r.To), r.From, r.To, string(r.Status), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		if mapped := translate(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func (s *Store) CountRequestsSince(ctx context.Context, from string, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM connection_requests WHERE from_user_id = $1 AND created_at >= $2`, from, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count requests: %w", err)
	}
	return count, nil
}

func (s *Store) PendingRequestsTo(ctx context.Context, userID string) ([]graph.Request, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+requestColumns+` FROM connection_requests
		WHERE to_user_id = $1 AND status = $2
		ORDER BY created_at ASC`, userID, string(graph.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("select pending requests: %w", err)
	}
	return pgx.CollectRows(rows, scanRequest)
}

func (s *Store) DeletePendingRequest(ctx context.Context, from, to string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM connection_requests
		WHERE pair_key = $1 AND from_user_id = $2 AND to_user_id = $3 AND status = $4`,
		graph.PairKey(from, to), from, to, string(graph.StatusPending))
	if err != nil {
		return false, fmt.Errorf("delete request: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// --- adjacency ---

func requireUsers(ctx context.Context, tx pgx.Tx, a, b string) error {
	var count int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE id = $1 OR id = $2`, a, b).Scan(&count); err != nil {
		return fmt.Errorf("check users: %w", err)
	}
	if count != 2 {
		return store.ErrNotFound
	}
	return nil
}

func addEdge(ctx context.Context, tx pgx.Tx, userID, kind, otherID string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO user_edges (user_id, kind, other_id) VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`, userID, kind, otherID)
	if err != nil {
		return false, fmt.Errorf("add %s edge: %w", kind, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) Follow(ctx context.Context, from, to string) (bool, error) {
	var added bool
	err := s.inTx(ctx, func(tx pgx.Tx) error {
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
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := requireUsers(ctx, tx, a, b); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE connection_requests SET status = $1, updated_at = $2
			WHERE id = $3 AND pair_key = $4 AND status = $5`,
			string(graph.StatusAccepted), at, id, graph.PairKey(a, b), string(graph.StatusPending))
		if err != nil {
			return fmt.Errorf("accept request: %w", err)
		}
		if tag.RowsAffected() == 0 {
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
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := requireUsers(ctx, tx, a, b); err != nil {
			return err
		}

		edges, err := tx.Exec(ctx, `
			DELETE FROM user_edges
			WHERE (user_id = $1 AND other_id = $2) OR (user_id = $2 AND other_id = $1)`, a, b)
		if err != nil {
			return fmt.Errorf("delete edges: %w", err)
		}

		requests, err := tx.Exec(ctx, `
			DELETE FROM connection_requests
			WHERE pair_key = $1 AND ((from_user_id = $2 AND to_user_id = $3) OR (from_user_id = $3 AND to_user_id = $2))`,
			graph.PairKey(a, b), a, b)
		if err != nil {
			return fmt.Errorf("delete request: %w", err)
		}

		removed = edges.RowsAffected() > 0 || requests.RowsAffected() > 0
		return nil
	})
	return removed, err
}
