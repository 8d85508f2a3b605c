package repository

import (
	"context"
	"fmt"
	"time"

	"underwriting-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// LedgerRepository journals capital movements for audit. Entries are
// append-only.
type LedgerRepository struct {
	db *sqlx.DB
}

func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Append(ctx context.Context, entry *models.CapitalLedgerEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO capital_ledger (
			id, entry_type, entity_id, amount, detail, created_at
		) VALUES (
			:id, :entry_type, :entity_id, :amount, :detail, :created_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func (r *LedgerRepository) ListRecent(ctx context.Context, limit int) ([]models.CapitalLedgerEntry, error) {
	var entries []models.CapitalLedgerEntry
	query := `
		SELECT id, entry_type, entity_id, amount, detail, created_at
		FROM capital_ledger
		ORDER BY created_at DESC
		LIMIT $1`

	if err := r.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}
