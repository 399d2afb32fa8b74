package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- users ----

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const query = `
		SELECT id, display_name, email, password_hash, role, is_email_verified, created_at, updated_at
		FROM users
		WHERE email=$1 AND deactivated_at IS NULL
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash,
		&user.Role, &user.IsEmailVerified, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	const query = `
		SELECT id, display_name, email, password_hash, role, is_email_verified, created_at, updated_at
		FROM users
		WHERE id=$1 AND deactivated_at IS NULL
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash,
		&user.Role, &user.IsEmailVerified, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	role := user.Role
	if role == "" {
		role = "viewer"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, role, is_email_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, role, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token='', verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	const query = `
		SELECT id, display_name, email, role, is_email_verified, created_at, updated_at
		FROM users
		WHERE deactivated_at IS NULL
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		var user User
		if err := rows.Scan(
			&user.ID, &user.DisplayName, &user.Email,
			&user.Role, &user.IsEmailVerified, &user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *PostgresStore) UpdateUserRole(ctx context.Context, userID, role string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET role=$2, updated_at=NOW() WHERE id=$1 AND deactivated_at IS NULL
	`, userID, role)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update role rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark reset used: %w", err)
	}
	return nil
}

// ---- token sessions ----

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email, u.role
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email, &user.Role)
	if err != nil {
		return User{}, err
	}
	if user.Role == "" {
		user.Role = "viewer"
	}
	return user, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ---- projects ----

func (s *PostgresStore) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, slug, description, status, created_by_name, updated_by_name, created_at, updated_at
		FROM projects
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		var item Project
		if err := rows.Scan(&item.ID, &item.Name, &item.Slug, &item.Description, &item.Status,
			&item.CreatedBy, &item.UpdatedBy, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	var item Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, description, status, created_by_name, updated_by_name, created_at, updated_at
		FROM projects
		WHERE id=$1
	`, projectID).Scan(&item.ID, &item.Name, &item.Slug, &item.Description, &item.Status,
		&item.CreatedBy, &item.UpdatedBy, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Project{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertProject(ctx context.Context, item Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, slug, description, status, created_by_name, updated_by_name)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id) DO NOTHING
	`, item.ID, item.Name, item.Slug, item.Description, item.Status, item.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateProjectState(ctx context.Context, projectID, name, description, status, updatedBy string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET name=$2, description=$3, status=$4, updated_by_name=$5, updated_at=NOW()
		WHERE id=$1
	`, projectID, name, description, status, updatedBy)
	if err != nil {
		return fmt.Errorf("update project state: %w", err)
	}
	return nil
}

// ---- memberships ----

func (s *PostgresStore) UpsertMembership(ctx context.Context, m Membership) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_memberships (project_id, user_id, role, node_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (project_id, user_id) DO UPDATE SET role=EXCLUDED.role, node_id=EXCLUDED.node_id
	`, m.ProjectID, m.UserID, m.Role, m.NodeID)
	if err != nil {
		return fmt.Errorf("upsert membership: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMembership(ctx context.Context, projectID, userID string) (Membership, error) {
	var m Membership
	err := s.db.QueryRowContext(ctx, `
		SELECT project_id, user_id, role, node_id, created_at
		FROM project_memberships
		WHERE project_id=$1 AND user_id=$2
	`, projectID, userID).Scan(&m.ProjectID, &m.UserID, &m.Role, &m.NodeID, &m.CreatedAt)
	if err != nil {
		return Membership{}, err
	}
	return m, nil
}

func (s *PostgresStore) ListMembers(ctx context.Context, projectID string) ([]Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, user_id, role, node_id, created_at
		FROM project_memberships
		WHERE project_id=$1
		ORDER BY created_at ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	items := make([]Membership, 0)
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.ProjectID, &m.UserID, &m.Role, &m.NodeID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memberships: %w", err)
	}
	return items, nil
}

// ---- policy versions ----

func (s *PostgresStore) InsertPolicyVersion(ctx context.Context, v PolicyVersion) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO policy_versions (id, project_id, version, status, config, compiled_by_name, compiled_at, effective_from, commit_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, v.ID, v.ProjectID, v.Version, v.Status, v.Config, v.CompiledBy, v.CompiledAt, v.EffectiveFrom, v.CommitHash)
	if err != nil {
		return fmt.Errorf("insert policy version: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPolicyVersion(ctx context.Context, versionID string) (PolicyVersion, error) {
	var v PolicyVersion
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, version, status, config, compiled_by_name, compiled_at, published_at, effective_from, commit_hash
		FROM policy_versions
		WHERE id=$1
	`, versionID).Scan(&v.ID, &v.ProjectID, &v.Version, &v.Status, &v.Config,
		&v.CompiledBy, &v.CompiledAt, &v.PublishedAt, &v.EffectiveFrom, &v.CommitHash)
	if err != nil {
		return PolicyVersion{}, err
	}
	return v, nil
}

func (s *PostgresStore) GetActivePolicyVersion(ctx context.Context, projectID string) (PolicyVersion, error) {
	var v PolicyVersion
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, version, status, config, compiled_by_name, compiled_at, published_at, effective_from, commit_hash
		FROM policy_versions
		WHERE project_id=$1 AND status='active'
	`, projectID).Scan(&v.ID, &v.ProjectID, &v.Version, &v.Status, &v.Config,
		&v.CompiledBy, &v.CompiledAt, &v.PublishedAt, &v.EffectiveFrom, &v.CommitHash)
	if err != nil {
		return PolicyVersion{}, err
	}
	return v, nil
}

// GetPolicyVersionForDate returns the version that governed work performed
// on the given date: the latest published version whose effective_from is
// not after the date.
func (s *PostgresStore) GetPolicyVersionForDate(ctx context.Context, projectID string, date time.Time) (PolicyVersion, error) {
	var v PolicyVersion
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, version, status, config, compiled_by_name, compiled_at, published_at, effective_from, commit_hash
		FROM policy_versions
		WHERE project_id=$1
			AND status IN ('active', 'archived')
			AND effective_from IS NOT NULL
			AND effective_from <= $2
		ORDER BY effective_from DESC, version DESC
		LIMIT 1
	`, projectID, date).Scan(&v.ID, &v.ProjectID, &v.Version, &v.Status, &v.Config,
		&v.CompiledBy, &v.CompiledAt, &v.PublishedAt, &v.EffectiveFrom, &v.CommitHash)
	if err != nil {
		return PolicyVersion{}, err
	}
	return v, nil
}

func (s *PostgresStore) ListPolicyVersions(ctx context.Context, projectID string) ([]PolicyVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, version, status, config, compiled_by_name, compiled_at, published_at, effective_from, commit_hash
		FROM policy_versions
		WHERE project_id=$1
		ORDER BY version DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list policy versions: %w", err)
	}
	defer rows.Close()

	items := make([]PolicyVersion, 0)
	for rows.Next() {
		var v PolicyVersion
		if err := rows.Scan(&v.ID, &v.ProjectID, &v.Version, &v.Status, &v.Config,
			&v.CompiledBy, &v.CompiledAt, &v.PublishedAt, &v.EffectiveFrom, &v.CommitHash); err != nil {
			return nil, fmt.Errorf("scan policy version: %w", err)
		}
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate policy versions: %w", err)
	}
	return items, nil
}

// ActivatePolicyVersion publishes a draft version. The previously active
// version, if any, is archived in the same transaction.
func (s *PostgresStore) ActivatePolicyVersion(ctx context.Context, projectID, versionID string, effectiveFrom time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin activate tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE policy_versions SET status='archived' WHERE project_id=$1 AND status='active'
	`, projectID); err != nil {
		return fmt.Errorf("archive active version: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE policy_versions
		SET status='active', published_at=NOW(), effective_from=$3
		WHERE id=$2 AND project_id=$1 AND status='draft'
	`, projectID, versionID, effectiveFrom)
	if err != nil {
		return fmt.Errorf("activate version: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("activate version rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit activate tx: %w", err)
	}
	return nil
}

// ---- graph node index ----

// ReplaceGraphNodes swaps the searchable node index for a project to match
// its latest saved snapshot.
func (s *PostgresStore) ReplaceGraphNodes(ctx context.Context, projectID string, nodes []GraphNodeRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin node index tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM graph_nodes WHERE project_id=$1`, projectID); err != nil {
		return fmt.Errorf("clear node index: %w", err)
	}
	for _, n := range nodes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO graph_nodes (project_id, node_id, node_type, label, role)
			VALUES ($1, $2, $3, $4, $5)
		`, projectID, n.NodeID, n.NodeType, n.Label, n.Role); err != nil {
			return fmt.Errorf("insert node index row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit node index tx: %w", err)
	}
	return nil
}

// ---- timesheet entries ----

func (s *PostgresStore) InsertTimesheetEntry(ctx context.Context, entry TimesheetEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO timesheet_entries (id, project_id, contract_id, user_id, node_id, work_date, hours, note, status, current_step)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, entry.ID, entry.ProjectID, entry.ContractID, entry.UserID, entry.NodeID,
		entry.WorkDate, entry.Hours, entry.Note, entry.Status, entry.CurrentStep)
	if err != nil {
		return fmt.Errorf("insert timesheet entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTimesheetEntry(ctx context.Context, entryID string) (TimesheetEntry, error) {
	var entry TimesheetEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, contract_id, user_id, node_id, work_date, hours, note, status, current_step, submitted_at, created_at, updated_at
		FROM timesheet_entries
		WHERE id=$1
	`, entryID).Scan(&entry.ID, &entry.ProjectID, &entry.ContractID, &entry.UserID, &entry.NodeID,
		&entry.WorkDate, &entry.Hours, &entry.Note, &entry.Status, &entry.CurrentStep,
		&entry.SubmittedAt, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return TimesheetEntry{}, err
	}
	return entry, nil
}

func (s *PostgresStore) ListTimesheetEntries(ctx context.Context, projectID, userID, status string) ([]TimesheetEntry, error) {
	const query = `
		SELECT id, project_id, contract_id, user_id, node_id, work_date, hours, note, status, current_step, submitted_at, created_at, updated_at
		FROM timesheet_entries
		WHERE project_id=$1
			AND ($2 = '' OR user_id=$2)
			AND ($3 = '' OR status=$3)
		ORDER BY work_date DESC, created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, projectID, userID, status)
	if err != nil {
		return nil, fmt.Errorf("list timesheet entries: %w", err)
	}
	defer rows.Close()

	items := make([]TimesheetEntry, 0)
	for rows.Next() {
		var entry TimesheetEntry
		if err := rows.Scan(&entry.ID, &entry.ProjectID, &entry.ContractID, &entry.UserID, &entry.NodeID,
			&entry.WorkDate, &entry.Hours, &entry.Note, &entry.Status, &entry.CurrentStep,
			&entry.SubmittedAt, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan timesheet entry: %w", err)
		}
		items = append(items, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timesheet entries: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateTimesheetEntryStatus(ctx context.Context, entryID, status string, currentStep int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE timesheet_entries
		SET status=$2, current_step=$3,
			submitted_at=CASE WHEN $2='submitted' AND submitted_at IS NULL THEN NOW() ELSE submitted_at END,
			updated_at=NOW()
		WHERE id=$1
	`, entryID, status, currentStep)
	if err != nil {
		return fmt.Errorf("update entry status: %w", err)
	}
	return nil
}

// SumHoursForRange totals a user's hours on one contract across [from, to],
// counting everything not rejected. Used for weekly and monthly limits.
func (s *PostgresStore) SumHoursForRange(ctx context.Context, contractID, userID string, from, to time.Time) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(hours)
		FROM timesheet_entries
		WHERE contract_id=$1 AND user_id=$2
			AND work_date >= $3 AND work_date <= $4
			AND status <> 'rejected'
	`, contractID, userID, from, to).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum hours: %w", err)
	}
	return total.Float64, nil
}

// ---- approval actions ----

func (s *PostgresStore) InsertApprovalAction(ctx context.Context, action ApprovalAction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approval_actions (entry_id, step_order, party_id, actor_id, actor_name, decision, comment)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, action.EntryID, action.StepOrder, action.PartyID, action.ActorID, action.ActorName, action.Decision, action.Comment)
	if err != nil {
		return fmt.Errorf("insert approval action: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListApprovalActions(ctx context.Context, entryID string) ([]ApprovalAction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entry_id, step_order, party_id, actor_id, actor_name, decision, comment, created_at
		FROM approval_actions
		WHERE entry_id=$1
		ORDER BY created_at ASC
	`, entryID)
	if err != nil {
		return nil, fmt.Errorf("list approval actions: %w", err)
	}
	defer rows.Close()

	items := make([]ApprovalAction, 0)
	for rows.Next() {
		var action ApprovalAction
		if err := rows.Scan(&action.ID, &action.EntryID, &action.StepOrder, &action.PartyID,
			&action.ActorID, &action.ActorName, &action.Decision, &action.Comment, &action.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan approval action: %w", err)
		}
		items = append(items, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate approval actions: %w", err)
	}
	return items, nil
}

// ---- audit ----

func (s *PostgresStore) InsertAuditEvent(ctx context.Context, event AuditEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (event_type, actor_name, project_id, entry_id, version_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, event.EventType, event.ActorName, event.ProjectID, event.EntryID, event.VersionID, payload)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAuditEvents(ctx context.Context, projectID string, limit int) ([]AuditEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, actor_name, project_id, entry_id, version_id, payload, created_at
		FROM audit_events
		WHERE project_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	items := make([]AuditEvent, 0)
	for rows.Next() {
		var event AuditEvent
		var payload []byte
		if err := rows.Scan(&event.ID, &event.EventType, &event.ActorName, &event.ProjectID,
			&event.EntryID, &event.VersionID, &payload, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &event.Payload); err != nil {
				return nil, fmt.Errorf("decode audit payload: %w", err)
			}
		}
		items = append(items, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) SummaryCounts(ctx context.Context) (projects int, pendingEntries int, approvedEntries int, err error) {
	const query = `
		SELECT
			(SELECT COUNT(*) FROM projects WHERE status <> 'archived'),
			(SELECT COUNT(*) FROM timesheet_entries WHERE status='submitted'),
			(SELECT COUNT(*) FROM timesheet_entries WHERE status='approved')
	`
	if scanErr := s.db.QueryRowContext(ctx, query).Scan(&projects, &pendingEntries, &approvedEntries); scanErr != nil {
		err = fmt.Errorf("summary counts: %w", scanErr)
		return
	}
	return
}
