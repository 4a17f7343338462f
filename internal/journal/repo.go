package journal

import (
	"context"
	"database/sql"
	"time"
)

const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

type Entry struct {
	ID         int64     `json:"id"`
	IntentID   string    `json:"intent_id"`
	IntentType string    `json:"intent_type"`
	Kind       string    `json:"kind"`
	Subject    string    `json:"subject"`
	Severity   string    `json:"severity"`
	Summary    string    `json:"summary"`
	Channel    string    `json:"channel"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *sql.DB { return r.db }

func (r *Repository) Close() error { return r.db.Close() }

func (r *Repository) RecordNotification(ctx context.Context, e Entry) error {
	var lastErr *string
	if e.Error != "" {
		lastErr = &e.Error
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO notifications
		(intent_id,intent_type,kind,subject,severity,summary,channel,status,last_error,created_ts)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.IntentID, e.IntentType, e.Kind, e.Subject, e.Severity, e.Summary, e.Channel, e.Status, lastErr, e.CreatedAt.UTC())
	return err
}

func (r *Repository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id,intent_id,intent_type,kind,subject,severity,summary,channel,status,last_error,created_ts
		FROM notifications ORDER BY created_ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var lastErr sql.NullString
		if err := rows.Scan(&e.ID, &e.IntentID, &e.IntentType, &e.Kind, &e.Subject, &e.Severity, &e.Summary, &e.Channel, &e.Status, &lastErr, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Error = lastErr.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE created_ts < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
