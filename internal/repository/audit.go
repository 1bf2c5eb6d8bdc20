package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bastionhq/sessiongate/internal/database"
	"github.com/bastionhq/sessiongate/internal/models"
	"github.com/google/uuid"
)

// SessionAuditRepository persists one row per session (open-to-close),
// the database half of the submit_audit collaborator for session
// lifecycle events.
type SessionAuditRepository struct {
	db *database.DB
}

func NewSessionAuditRepository(db *database.DB) *SessionAuditRepository {
	return &SessionAuditRepository{db: db}
}

func (r *SessionAuditRepository) Create(ctx context.Context, a *models.SessionAudit) error {
	query := `
		INSERT INTO session_audits (id, user_id, asset_id, account_id, protocol, start_time, session_status, client_ip, bytes_sent, bytes_received)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	a.ID = uuid.New()
	a.StartTime = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.UserID, a.AssetID, a.AccountID, a.Protocol, a.StartTime,
		a.SessionStatus, a.ClientIP, a.BytesSent, a.BytesReceived,
	)
	if err != nil {
		return fmt.Errorf("failed to create session audit: %w", err)
	}
	return nil
}

func (r *SessionAuditRepository) UpdateStatus(ctx context.Context, a *models.SessionAudit) error {
	query := `
		UPDATE session_audits
		SET end_time = $1, bytes_sent = $2, bytes_received = $3,
		    session_status = $4, error_message = $5, recording_path = $6
		WHERE id = $7
	`

	a.EndTime.Time = time.Now()
	a.EndTime.Valid = true

	_, err := r.db.ExecContext(ctx, query,
		a.EndTime, a.BytesSent, a.BytesReceived, a.SessionStatus,
		a.ErrorMessage, a.RecordingPath, a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session audit: %w", err)
	}
	return nil
}

// ListActive retrieves all sessions still marked active.
func (r *SessionAuditRepository) ListActive(ctx context.Context) ([]*models.SessionAudit, error) {
	query := `
		SELECT id, user_id, asset_id, account_id, protocol, start_time, end_time,
		       bytes_sent, bytes_received, session_status, client_ip, error_message, recording_path
		FROM session_audits
		WHERE session_status = $1
		ORDER BY start_time DESC
	`

	var audits []*models.SessionAudit
	if err := r.db.SelectContext(ctx, &audits, query, models.SessionStatusActive); err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	return audits, nil
}

// EventRepository persists the discrete events the session engines
// emit mid-session: blocklist hits, command logs and file operations
// (spec §1 submit_audit, §4.1/§4.2).
type EventRepository struct {
	db *database.DB
}

func NewEventRepository(db *database.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Create(ctx context.Context, rec *models.AuditRecord) error {
	query := `
		INSERT INTO audit_events (type, asset_id, account_id, user_id, conn_tag, command, filename, file_size, duration_secs, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	rec.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		rec.Type, rec.AssetID, rec.AccountID, rec.UserID, rec.ConnTag,
		rec.Command, rec.Filename, rec.FileSize, rec.DurationSecs, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit event: %w", err)
	}
	return nil
}
