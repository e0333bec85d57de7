package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	apperrors "travel-assistant/internal/common/errors"
	"travel-assistant/internal/models"

	"github.com/google/uuid"
)

// ReceiptArchive is an append-only audit trail of per-turn receipts in
// Postgres.
//
//	CREATE TABLE turn_receipts (
//	    id         UUID PRIMARY KEY,
//	    thread_id  TEXT NOT NULL,
//	    intent     TEXT NOT NULL,
//	    reply      TEXT NOT NULL,
//	    facts      JSONB NOT NULL,
//	    decisions  JSONB NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL
//	);
type ReceiptArchive struct {
	db *sql.DB
}

// NewReceiptArchive stores receipts in the turn_receipts table.
func NewReceiptArchive(db *sql.DB) *ReceiptArchive {
	return &ReceiptArchive{db: db}
}

// Archive stores receipts and returns them with ID and CreatedAt filled in.
func (a *ReceiptArchive) Archive(ctx context.Context, threadID string, intent models.Intent, receipts models.Receipts) (models.Receipts, error) {
	if receipts.ID == "" {
		receipts.ID = uuid.New().String()
	}
	if receipts.CreatedAt.IsZero() {
		receipts.CreatedAt = time.Now().UTC()
	}

	facts, err := json.Marshal(nonNilFacts(receipts.Facts))
	if err != nil {
		return receipts, apperrors.NewReceiptArchiveFailedError(err)
	}
	decisions, err := json.Marshal(nonNilDecisions(receipts.Decisions))
	if err != nil {
		return receipts, apperrors.NewReceiptArchiveFailedError(err)
	}

	query := `
		INSERT INTO turn_receipts (id, thread_id, intent, reply, facts, decisions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := a.db.ExecContext(ctx, query,
		receipts.ID, threadID, string(intent), receipts.Reply, facts, decisions, receipts.CreatedAt,
	); err != nil {
		return receipts, apperrors.NewReceiptArchiveFailedError(fmt.Errorf("insert receipts: %w", err))
	}
	return receipts, nil
}

// Recent returns up to limit receipts for a thread, newest first.
func (a *ReceiptArchive) Recent(ctx context.Context, threadID string, limit int) ([]models.Receipts, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT id, reply, facts, decisions, created_at
		FROM turn_receipts
		WHERE thread_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := a.db.QueryContext(ctx, query, threadID, limit)
	if err != nil {
		return nil, apperrors.NewReceiptArchiveFailedError(fmt.Errorf("query receipts: %w", err))
	}
	defer rows.Close()

	var out []models.Receipts
	for rows.Next() {
		var r models.Receipts
		var facts, decisions []byte
		if err := rows.Scan(&r.ID, &r.Reply, &facts, &decisions, &r.CreatedAt); err != nil {
			return nil, apperrors.NewReceiptArchiveFailedError(err)
		}
		if err := json.Unmarshal(facts, &r.Facts); err != nil {
			return nil, apperrors.NewReceiptArchiveFailedError(err)
		}
		if err := json.Unmarshal(decisions, &r.Decisions); err != nil {
			return nil, apperrors.NewReceiptArchiveFailedError(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewReceiptArchiveFailedError(err)
	}
	return out, nil
}

func nonNilFacts(f []models.Fact) []models.Fact {
	if f == nil {
		return []models.Fact{}
	}
	return f
}

func nonNilDecisions(d []models.Decision) []models.Decision {
	if d == nil {
		return []models.Decision{}
	}
	return d
}
