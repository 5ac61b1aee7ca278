//go:build integration

package integration

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ckaraca/spotfound/internal/migrate"
	"github.com/ckaraca/spotfound/internal/testutil"
)

var testDB *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	pgContainer, err := testutil.NewPostgresContainer(ctx)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	if err := migrate.Up(pgContainer.ConnectionString); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	poolCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	testDB, err = pgxpool.New(poolCtx, pgContainer.ConnectionString)
	if err != nil {
		log.Fatalf("connect pool: %v", err)
	}
	defer testDB.Close()

	os.Exit(m.Run())
}

// truncateAll resets state between tests.
func truncateAll(t *testing.T) {
	t.Helper()

	_, err := testDB.Exec(context.Background(),
		`TRUNCATE notification_queue, messages, threads, users CASCADE`)
	if err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

// createUser inserts a user row and returns its id.
func createUser(t *testing.T, email, name string) string {
	t.Helper()

	var id string
	err := testDB.QueryRow(context.Background(), `
		INSERT INTO users (email, display_name) VALUES ($1, $2) RETURNING id
	`, email, name).Scan(&id)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return id
}
