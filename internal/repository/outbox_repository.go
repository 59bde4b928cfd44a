package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/doctorat-api/internal/models"
	"github.com/noah-isme/doctorat-api/pkg/database"
)

const outboxColumns = `id, aggregate_type, aggregate_id, event_type, topic, message_key, payload, correlation_id,
       created_at, published_at, attempts, last_error, parked_at`

// OutboxRepository stores events committed alongside state changes.
type OutboxRepository struct {
	db *sqlx.DB
}

// NewOutboxRepository constructs the repository.
func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Insert writes an outbox row inside the caller's transaction.
func (r *OutboxRepository) Insert(ctx context.Context, msg *models.OutboxMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO outbox (` + outboxColumns + `)
	VALUES (:id, :aggregate_type, :aggregate_id, :event_type, :topic, :message_key, :payload, :correlation_id,
	        :created_at, :published_at, :attempts, :last_error, :parked_at)`
	if _, err := sqlx.NamedExecContext(ctx, database.Executor(ctx, r.db), query, msg); err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}
	return nil
}

// ClaimPending locks up to limit unpublished, unparked rows; call it inside a transaction.
func (r *OutboxRepository) ClaimPending(ctx context.Context, limit int) ([]models.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT ` + outboxColumns + ` FROM outbox WHERE published_at IS NULL AND parked_at IS NULL
	ORDER BY created_at LIMIT $1 FOR UPDATE SKIP LOCKED`
	var msgs []models.OutboxMessage
	if err := sqlx.SelectContext(ctx, database.Executor(ctx, r.db), &msgs, query, limit); err != nil {
		return nil, fmt.Errorf("claim outbox: %w", err)
	}
	return msgs, nil
}

// MarkPublished stamps the row as delivered.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE outbox SET published_at = $2, attempts = attempts + 1, last_error = NULL WHERE id = $1`
	if _, err := database.Executor(ctx, r.db).ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

// MarkFailed records a failed publish attempt, leaving the row pending.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id, reason string) error {
	const query = `UPDATE outbox SET attempts = attempts + 1, last_error = $2 WHERE id = $1`
	if _, err := database.Executor(ctx, r.db).ExecContext(ctx, query, id, reason); err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}

// Park records the last failure and takes the row out of the relay's queue.
func (r *OutboxRepository) Park(ctx context.Context, id, reason string, at time.Time) error {
	const query = `UPDATE outbox SET attempts = attempts + 1, last_error = $2, parked_at = $3 WHERE id = $1`
	if _, err := database.Executor(ctx, r.db).ExecContext(ctx, query, id, reason, at); err != nil {
		return fmt.Errorf("park outbox: %w", err)
	}
	return nil
}
