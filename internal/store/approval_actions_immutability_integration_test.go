package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

// TestApprovalActionsImmutabilityBlocksUpdate verifies that UPDATE operations
// on approval_actions are blocked by the database trigger with a hard failure.
func TestApprovalActionsImmutabilityBlocksUpdate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	databaseURL := getTestDatabaseURL(t)
	db, err := Open(ctx, databaseURL)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer db.Close()

	// Ensure migration 0004 is applied
	_, err = db.ExecContext(ctx, `
		SELECT 1 FROM information_schema.triggers
		WHERE trigger_name = 'trg_approval_actions_block_update'
	`)
	if err != nil {
		t.Fatalf("immutability trigger not found; migration 0004 may not be applied: %v", err)
	}

	entryID := seedApprovalFixture(ctx, t, db, "entry-test-update")

	_, err = db.ExecContext(ctx, `
		INSERT INTO approval_actions (entry_id, step_order, party_id, actor_id, actor_name, decision, comment)
		VALUES ($1, 1, 'agency', 'usr-test', 'Test User', 'approved', 'looks right')
	`, entryID)
	if err != nil {
		t.Fatalf("insert test approval action: %v", err)
	}

	// Attempt to UPDATE the decision - should fail
	_, err = db.ExecContext(ctx, `
		UPDATE approval_actions
		SET decision = 'rejected'
		WHERE entry_id = $1
	`, entryID)

	if err == nil {
		t.Fatal("expected UPDATE to be blocked, but it succeeded")
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Fatalf("expected PostgreSQL error, got: %v", err)
	}
	if pgErr.SQLState() != "55000" {
		t.Fatalf("expected SQLSTATE 55000 (object_not_in_prerequisite_state), got: %s", pgErr.SQLState())
	}
	if pgErr.Message != "approval_actions is immutable; UPDATE is not allowed" {
		t.Fatalf("unexpected error message: %s", pgErr.Message)
	}

	cleanupApprovalFixture(ctx, db)
}

// TestApprovalActionsImmutabilityBlocksDelete verifies that DELETE operations
// on approval_actions are blocked by the database trigger with a hard failure.
func TestApprovalActionsImmutabilityBlocksDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	databaseURL := getTestDatabaseURL(t)
	db, err := Open(ctx, databaseURL)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer db.Close()

	entryID := seedApprovalFixture(ctx, t, db, "entry-test-delete")

	_, err = db.ExecContext(ctx, `
		INSERT INTO approval_actions (entry_id, step_order, party_id, actor_id, actor_name, decision, comment)
		VALUES ($1, 1, 'agency', 'usr-test', 'Test User', 'rejected', 'wrong hours')
	`, entryID)
	if err != nil {
		t.Fatalf("insert test approval action: %v", err)
	}

	_, err = db.ExecContext(ctx, `
		DELETE FROM approval_actions
		WHERE entry_id = $1
	`, entryID)

	if err == nil {
		t.Fatal("expected DELETE to be blocked, but it succeeded")
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Fatalf("expected PostgreSQL error, got: %v", err)
	}
	if pgErr.SQLState() != "55000" {
		t.Fatalf("expected SQLSTATE 55000 (object_not_in_prerequisite_state), got: %s", pgErr.SQLState())
	}
	if pgErr.Message != "approval_actions is immutable; DELETE is not allowed" {
		t.Fatalf("unexpected error message: %s", pgErr.Message)
	}

	cleanupApprovalFixture(ctx, db)
}

// TestApprovalActionsInsertStillWorks verifies that INSERT operations
// on approval_actions continue to work normally.
func TestApprovalActionsInsertStillWorks(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	databaseURL := getTestDatabaseURL(t)
	db, err := Open(ctx, databaseURL)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer db.Close()

	entryID := seedApprovalFixture(ctx, t, db, "entry-test-insert")

	_, err = db.ExecContext(ctx, `
		INSERT INTO approval_actions (entry_id, step_order, party_id, actor_id, actor_name, decision, comment)
		VALUES ($1, 1, 'agency', 'usr-test', 'Test User', 'approved', '')
	`, entryID)
	if err != nil {
		t.Fatalf("insert approval action should succeed: %v", err)
	}

	var count int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM approval_actions WHERE entry_id = $1`, entryID).Scan(&count)
	if err != nil {
		t.Fatalf("query approval actions: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 approval action, got %d", count)
	}

	cleanupApprovalFixture(ctx, db)
}

// seedApprovalFixture inserts the user, project, and timesheet entry an
// approval action hangs off, returning the entry id.
func seedApprovalFixture(ctx context.Context, t *testing.T, db *sql.DB, entryID string) string {
	t.Helper()

	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email)
		VALUES ('usr-test', 'Test User', 'test-user@example.com')
		ON CONFLICT (id) DO NOTHING
	`)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO projects (id, name, slug)
		VALUES ('proj-test', 'Test Project', 'test-project')
		ON CONFLICT (id) DO NOTHING
	`)
	if err != nil {
		t.Fatalf("seed project: %v", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO timesheet_entries (id, project_id, user_id, work_date, hours, status, current_step)
		VALUES ($1, 'proj-test', 'usr-test', CURRENT_DATE, 8, 'submitted', 1)
		ON CONFLICT (id) DO NOTHING
	`, entryID)
	if err != nil {
		t.Fatalf("seed timesheet entry: %v", err)
	}

	return entryID
}

func cleanupApprovalFixture(ctx context.Context, db *sql.DB) {
	// DELETE is blocked by the trigger, so test cleanup truncates.
	_, _ = db.ExecContext(ctx, `TRUNCATE approval_actions`)
	_, _ = db.ExecContext(ctx, `DELETE FROM timesheet_entries WHERE project_id = 'proj-test'`)
	_, _ = db.ExecContext(ctx, `DELETE FROM projects WHERE id = 'proj-test'`)
	_, _ = db.ExecContext(ctx, `DELETE FROM users WHERE id = 'usr-test'`)
}

// getTestDatabaseURL returns the database URL for testing.
// It checks the TEST_DATABASE_URL environment variable first,
// then falls back to a default local development URL.
func getTestDatabaseURL(t *testing.T) string {
	t.Helper()

	if url := testGetenv("TEST_DATABASE_URL", ""); url != "" {
		return url
	}

	host := testGetenv("POSTGRES_HOST", "localhost")
	port := testGetenv("POSTGRES_PORT", "5432")
	user := testGetenv("POSTGRES_USER", "worklane")
	pass := testGetenv("POSTGRES_PASSWORD", "worklane")
	dbname := testGetenv("POSTGRES_DB", "worklane_test")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + dbname + "?sslmode=disable"
}

func testGetenv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
