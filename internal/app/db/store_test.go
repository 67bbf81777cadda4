package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"pingup/internal/app/store"
	"pingup/internal/app/store/storetest"
)

// TestStore runs the backend suite against PINGUP_TEST_DATABASE_DSN. Tables are truncated
// before each subtest, so point it at a disposable database.
func TestStore(t *testing.T) {
	dsn := os.Getenv("PINGUP_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("PINGUP_TEST_DATABASE_DSN not set")
	}

	ctx := context.Background()
	pool, err := NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(pool.Close)

	storetest.Run(t, func(t *testing.T) storetest.Backend {
		if _, err := pool.Exec(ctx, `TRUNCATE messages, connection_requests, user_edges, users`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return NewStore(pool)
	})
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), store.ErrNotFound},
		{"unique", &pgconn.PgError{Code: "23505"}, store.ErrDuplicate},
		{"foreign key", &pgconn.PgError{Code: "23503"}, store.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := translate(tt.err); !errors.Is(got, tt.want) {
				t.Fatalf("translate = %v, want %v", got, tt.want)
			}
		})
	}

	other := &pgconn.PgError{Code: "40001"}
	if got := translate(other); got != error(other) {
		t.Fatalf("unrelated error rewritten to %v", got)
	}
	if translate(nil) != nil {
		t.Fatal("translate(nil) should be nil")
	}
}
