package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"edumod/internal/apperrors"
	"edumod/internal/models"
	"edumod/internal/roles"
	"edumod/internal/workflow"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresStore persists the queue in PostgreSQL. Optimistic locking uses
// the version column; an item update and its audit rows share one
// transaction.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over an open connection pool
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Ping checks the connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return storageErr("ping", s.db.PingContext(ctx))
}

// Close closes the pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

const itemColumns = `
	id, content_id, content_type, category, author_ref, body, sealed_original,
	privacy_score, educational_score, quality_score, risk_score, priority,
	status, proposed_status, assigned_to, assigned_at, review_deadline,
	workflow_type, flags, educational_notes, suggested_edit, escalation,
	resolution, previous_item_id, pattern_version, audit_sample, version,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*models.ModerationItem, error) {
	item := &models.ModerationItem{}
	var (
		status, proposed, workflowType string
		assignedTo                     sql.NullString
		assignedAt, reviewDeadline     sql.NullTime
		escalation, resolution         []byte
		previousID                     uuid.NullUUID
	)
	err := row.Scan(
		&item.ID,
		&item.ContentID,
		&item.ContentType,
		&item.Category,
		&item.AuthorRef,
		&item.Body,
		&item.SealedOriginal,
		&item.PrivacyScore,
		&item.EducationalScore,
		&item.QualityScore,
		&item.RiskScore,
		&item.Priority,
		&status,
		&proposed,
		&assignedTo,
		&assignedAt,
		&reviewDeadline,
		&workflowType,
		pq.Array(&item.Flags),
		pq.Array(&item.EducationalNotes),
		&item.SuggestedEdit,
		&escalation,
		&resolution,
		&previousID,
		&item.PatternVersion,
		&item.AuditSample,
		&item.Version,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Status = models.Status(status)
	item.ProposedStatus = models.Status(proposed)
	item.WorkflowType = workflow.Type(workflowType)
	if assignedTo.Valid {
		item.AssignedTo = &assignedTo.String
	}
	if assignedAt.Valid {
		item.AssignedAt = &assignedAt.Time
	}
	if reviewDeadline.Valid {
		item.ReviewDeadline = &reviewDeadline.Time
	}
	if previousID.Valid {
		item.PreviousItemID = &previousID.UUID
	}
	if len(escalation) > 0 {
		item.Escalation = &models.Escalation{}
		if err := json.Unmarshal(escalation, item.Escalation); err != nil {
			return nil, fmt.Errorf("failed to decode escalation: %w", err)
		}
	}
	if len(resolution) > 0 {
		item.Resolution = &models.Resolution{}
		if err := json.Unmarshal(resolution, item.Resolution); err != nil {
			return nil, fmt.Errorf("failed to decode resolution: %w", err)
		}
	}
	return item, nil
}

func itemArgs(item *models.ModerationItem) ([]any, error) {
	escalation, err := jsonOrNull(item.Escalation)
	if err != nil {
		return nil, err
	}
	resolution, err := jsonOrNull(item.Resolution)
	if err != nil {
		return nil, err
	}
	var previousID uuid.NullUUID
	if item.PreviousItemID != nil {
		previousID = uuid.NullUUID{UUID: *item.PreviousItemID, Valid: true}
	}
	flags := item.Flags
	if flags == nil {
		flags = []string{}
	}
	notes := item.EducationalNotes
	if notes == nil {
		notes = []string{}
	}

	return []any{
		item.ID,
		item.ContentID,
		item.ContentType,
		item.Category,
		item.AuthorRef,
		item.Body,
		item.SealedOriginal,
		item.PrivacyScore,
		item.EducationalScore,
		item.QualityScore,
		item.RiskScore,
		item.Priority,
		string(item.Status),
		string(item.ProposedStatus),
		item.AssignedTo,
		item.AssignedAt,
		item.ReviewDeadline,
		string(item.WorkflowType),
		pq.Array(flags),
		pq.Array(notes),
		item.SuggestedEdit,
		escalation,
		resolution,
		previousID,
		item.PatternVersion,
		item.AuditSample,
		item.Version,
		item.CreatedAt,
		item.UpdatedAt,
	}, nil
}

func jsonOrNull(v any) (any, error) {
	switch t := v.(type) {
	case *models.Escalation:
		if t == nil {
			return nil, nil
		}
	case *models.Resolution:
		if t == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T: %w", v, err)
	}
	// lib/pq sends []byte as bytea, which jsonb rejects
	return string(data), nil
}

// CreateItem inserts an item and its initial audit records
func (s *PostgresStore) CreateItem(ctx context.Context, item *models.ModerationItem, actions ...models.ModerationAction) error {
	if err := validateNewItem(item); err != nil {
		return err
	}
	if item.Version == 0 {
		item.Version = 1
	}
	args, err := itemArgs(item)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin create item", err)
	}
	defer rollback(tx)

	query := `INSERT INTO moderation_items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)`
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("item %s already exists: %w", item.ID, apperrors.ErrStateConflict)
		}
		return storageErr("failed to create item", err)
	}
	if err := insertActions(ctx, tx, actions); err != nil {
		return err
	}
	return storageErr("commit create item", tx.Commit())
}

// GetItem loads an item by id
func (s *PostgresStore) GetItem(ctx context.Context, id uuid.UUID) (*models.ModerationItem, error) {
	query := `SELECT ` + itemColumns + ` FROM moderation_items WHERE id = $1`
	item, err := scanItem(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, notFound("item", id.String())
	}
	if err != nil {
		return nil, storageErr("failed to get item", err)
	}
	return item, nil
}

// TransitionItem writes the new item state if the stored version matches
func (s *PostgresStore) TransitionItem(ctx context.Context, item *models.ModerationItem, expectedVersion int64, actions ...models.ModerationAction) error {
	next := item.Clone()
	next.Version = expectedVersion + 1
	args, err := itemArgs(next)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin transition", err)
	}
	defer rollback(tx)

	query := `
		UPDATE moderation_items SET
			content_id = $2, content_type = $3, category = $4, author_ref = $5,
			body = $6, sealed_original = $7, privacy_score = $8,
			educational_score = $9, quality_score = $10, risk_score = $11,
			priority = $12, status = $13, proposed_status = $14,
			assigned_to = $15, assigned_at = $16, review_deadline = $17,
			workflow_type = $18, flags = $19, educational_notes = $20,
			suggested_edit = $21, escalation = $22, resolution = $23,
			previous_item_id = $24, pattern_version = $25, audit_sample = $26,
			version = $27, created_at = $28, updated_at = $29
		WHERE id = $1 AND version = $30 AND status NOT IN ('rejected', 'resolved')`
	result, err := tx.ExecContext(ctx, query, append(args, expectedVersion)...)
	if err != nil {
		return storageErr("failed to transition item", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storageErr("failed to transition item", err)
	}
	if affected == 0 {
		return s.transitionMiss(ctx, tx, item.ID, expectedVersion)
	}

	if err := insertActions(ctx, tx, actions); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit transition", err)
	}
	item.Version = next.Version
	return nil
}

// transitionMiss explains why a conditional update touched no row
func (s *PostgresStore) transitionMiss(ctx context.Context, tx *sql.Tx, id uuid.UUID, expected int64) error {
	var (
		status  string
		version int64
	)
	err := tx.QueryRowContext(ctx, `SELECT status, version FROM moderation_items WHERE id = $1`, id).Scan(&status, &version)
	if err == sql.ErrNoRows {
		return notFound("item", id.String())
	}
	if err != nil {
		return storageErr("failed to inspect item", err)
	}
	if version != expected {
		return fmt.Errorf("item %s at version %d, expected %d: %w", id, version, expected, apperrors.ErrStateConflict)
	}
	return fmt.Errorf("item %s is %s: %w", id, status, apperrors.ErrInvalidTransition)
}

func insertActions(ctx context.Context, tx *sql.Tx, actions []models.ModerationAction) error {
	query := `
		INSERT INTO moderation_actions
			(id, item_id, moderator_id, kind, reason, notes, risk_score, from_status, to_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	for _, a := range actions {
		_, err := tx.ExecContext(ctx, query,
			a.ID, a.ItemID, a.ModeratorID, string(a.Kind), a.Reason, a.Notes,
			a.RiskScore, string(a.FromStatus), string(a.ToStatus), a.Timestamp,
		)
		if isForeignKeyViolation(err) {
			return notFound("item", a.ItemID.String())
		}
		if err != nil {
			return storageErr("failed to append action", err)
		}
	}
	return nil
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		slog.Error("Failed to rollback transaction", "error", err)
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

// ListItems returns matching items ordered by priority desc then createdAt asc
func (s *PostgresStore) ListItems(ctx context.Context, q models.ItemQuery) ([]*models.ModerationItem, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, st := range q.Statuses {
			statuses[i] = string(st)
		}
		where = append(where, "status = ANY("+arg(pq.Array(statuses))+")")
	}
	if q.MaxRisk != nil {
		where = append(where, "risk_score <= "+arg(*q.MaxRisk))
	}
	if q.AssignedTo != "" {
		where = append(where, "assigned_to = "+arg(q.AssignedTo))
	}
	if q.WorkflowType != "" {
		where = append(where, "workflow_type = "+arg(string(q.WorkflowType)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM moderation_items`+clause, args...).Scan(&total); err != nil {
		return nil, 0, storageErr("failed to count items", err)
	}

	query := `SELECT ` + itemColumns + ` FROM moderation_items` + clause +
		` ORDER BY priority DESC, created_at ASC, id ASC`
	if q.Limit > 0 {
		query += " LIMIT " + arg(q.Limit)
	}
	if q.Offset > 0 {
		query += " OFFSET " + arg(q.Offset)
	}

	items, err := s.queryItems(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *PostgresStore) queryItems(ctx context.Context, query string, args ...any) ([]*models.ModerationItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("failed to query items", err)
	}
	defer rows.Close()

	var items []*models.ModerationItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, storageErr("failed to scan item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to read items", err)
	}
	return items, nil
}

// ListOverdue returns in_review items whose deadline has passed
func (s *PostgresStore) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*models.ModerationItem, error) {
	query := `SELECT ` + itemColumns + ` FROM moderation_items
		WHERE status = 'in_review' AND review_deadline < $1
		ORDER BY review_deadline ASC`
	args := []any{now}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	return s.queryItems(ctx, query, args...)
}

// FindOpenByContent returns the newest open item for a content fingerprint
func (s *PostgresStore) FindOpenByContent(ctx context.Context, contentID string) (*models.ModerationItem, error) {
	query := `SELECT ` + itemColumns + ` FROM moderation_items
		WHERE content_id = $1 AND status IN ('pending', 'in_review', 'escalated', 'pending_oversight')
		ORDER BY created_at DESC
		LIMIT 1`
	item, err := scanItem(s.db.QueryRowContext(ctx, query, contentID))
	if err == sql.ErrNoRows {
		return nil, notFound("open item for content", contentID)
	}
	if err != nil {
		return nil, storageErr("failed to find item by content", err)
	}
	return item, nil
}

// ListActions returns the audit trail of an item in append order
func (s *PostgresStore) ListActions(ctx context.Context, itemID uuid.UUID) ([]models.ModerationAction, error) {
	query := `
		SELECT id, item_id, moderator_id, kind, reason, notes, risk_score, from_status, to_status, created_at
		FROM moderation_actions
		WHERE item_id = $1
		ORDER BY seq`
	rows, err := s.db.QueryContext(ctx, query, itemID)
	if err != nil {
		return nil, storageErr("failed to list actions", err)
	}
	defer rows.Close()

	var actions []models.ModerationAction
	for rows.Next() {
		var (
			a                      models.ModerationAction
			kind, fromSt, toStatus string
		)
		if err := rows.Scan(&a.ID, &a.ItemID, &a.ModeratorID, &kind, &a.Reason, &a.Notes,
			&a.RiskScore, &fromSt, &toStatus, &a.Timestamp); err != nil {
			return nil, storageErr("failed to scan action", err)
		}
		a.Kind = models.ActionKind(kind)
		a.FromStatus = models.Status(fromSt)
		a.ToStatus = models.Status(toStatus)
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to read actions", err)
	}
	if len(actions) == 0 {
		if _, err := s.GetItem(ctx, itemID); err != nil {
			return nil, err
		}
	}
	return actions, nil
}

// AppendAction adds an audit record without touching the item
func (s *PostgresStore) AppendAction(ctx context.Context, action models.ModerationAction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin append action", err)
	}
	defer rollback(tx)

	if err := insertActions(ctx, tx, []models.ModerationAction{action}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit append action", err)
	}
	return nil
}

// QueueStats counts items per status and workflow
func (s *PostgresStore) QueueStats(ctx context.Context, now time.Time) (*models.QueueStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, workflow_type, COUNT(*),
			COUNT(*) FILTER (WHERE status = 'in_review' AND review_deadline < $1)
		FROM moderation_items
		GROUP BY status, workflow_type`, now)
	if err != nil {
		return nil, storageErr("failed to query stats", err)
	}
	defer rows.Close()

	stats := &models.QueueStats{
		ByStatus:   make(map[models.Status]int),
		ByWorkflow: make(map[workflow.Type]int),
	}
	for rows.Next() {
		var (
			status, wf     string
			count, overdue int
		)
		if err := rows.Scan(&status, &wf, &count, &overdue); err != nil {
			return nil, storageErr("failed to scan stats", err)
		}
		st := models.Status(status)
		stats.ByStatus[st] += count
		stats.ByWorkflow[workflow.Type(wf)] += count
		stats.Total += count
		stats.Overdue += overdue
		if st == models.StatusEscalated || st == models.StatusPendingOversight {
			stats.OpenEscalation += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to read stats", err)
	}
	return stats, nil
}

const moderatorColumns = `
	id, name, tier, max_risk_level, requires_oversight, active,
	claimed, approved, flagged, edited, rejected, escalated, resolved,
	last_active_at, created_at, updated_at`

func scanModerator(row rowScanner) (*models.Moderator, error) {
	m := &models.Moderator{}
	var (
		tier         string
		lastActiveAt sql.NullTime
	)
	err := row.Scan(
		&m.ID, &m.Name, &tier, &m.MaxRiskLevel, &m.RequiresOversight, &m.Active,
		&m.Stats.Claimed, &m.Stats.Approved, &m.Stats.Flagged, &m.Stats.Edited,
		&m.Stats.Rejected, &m.Stats.Escalated, &m.Stats.Resolved,
		&lastActiveAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if m.Tier, err = roles.ParseTier(tier); err != nil {
		return nil, err
	}
	if lastActiveAt.Valid {
		m.LastActiveAt = &lastActiveAt.Time
	}
	return m, nil
}

// GetModerator loads a moderator by id
func (s *PostgresStore) GetModerator(ctx context.Context, id string) (*models.Moderator, error) {
	query := `SELECT ` + moderatorColumns + ` FROM moderators WHERE id = $1`
	m, err := scanModerator(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, notFound("moderator", id)
	}
	if err != nil {
		return nil, storageErr("failed to get moderator", err)
	}
	return m, nil
}

// SaveModerator inserts or updates a moderator's profile. Counters are only
// changed through RecordActivity.
func (s *PostgresStore) SaveModerator(ctx context.Context, m *models.Moderator) error {
	if m.ID == "" {
		return fmt.Errorf("moderator id is required: %w", apperrors.ErrInvalidInput)
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	query := `
		INSERT INTO moderators (id, name, tier, max_risk_level, requires_oversight, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			tier = EXCLUDED.tier,
			max_risk_level = EXCLUDED.max_risk_level,
			requires_oversight = EXCLUDED.requires_oversight,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at`
	_, err := s.db.ExecContext(ctx, query,
		m.ID, m.Name, m.Tier.String(), m.MaxRiskLevel, m.RequiresOversight, m.Active, m.CreatedAt, m.UpdatedAt)
	return storageErr("failed to save moderator", err)
}

// ListModerators returns all moderators ordered by id
func (s *PostgresStore) ListModerators(ctx context.Context) ([]*models.Moderator, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+moderatorColumns+` FROM moderators ORDER BY id`)
	if err != nil {
		return nil, storageErr("failed to list moderators", err)
	}
	defer rows.Close()

	var out []*models.Moderator
	for rows.Next() {
		m, err := scanModerator(rows)
		if err != nil {
			return nil, storageErr("failed to scan moderator", err)
		}
		out = append(out, m)
	}
	return out, storageErr("failed to read moderators", rows.Err())
}

var statsColumns = map[models.ActionKind]string{
	models.ActionClaim:            "claimed",
	models.ActionApprove:          "approved",
	models.ActionFlag:             "flagged",
	models.ActionSuggestEdit:      "edited",
	models.ActionReject:           "rejected",
	models.ActionEscalate:         "escalated",
	models.ActionOversightResolve: "resolved",
}

// RecordActivity bumps the moderator's counter for kind and their last activity
func (s *PostgresStore) RecordActivity(ctx context.Context, moderatorID string, kind models.ActionKind, at time.Time) error {
	set := "last_active_at = $2, updated_at = $2"
	if column, ok := statsColumns[kind]; ok {
		set = column + " = " + column + " + 1, " + set
	}
	result, err := s.db.ExecContext(ctx, `UPDATE moderators SET `+set+` WHERE id = $1`, moderatorID, at)
	if err != nil {
		return storageErr("failed to record activity", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return notFound("moderator", moderatorID)
	}
	return nil
}
