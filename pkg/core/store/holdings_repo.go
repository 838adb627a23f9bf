package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"holdings13f/pkg/core/holdings"
)

// HoldingsRepository is the per-quarter holdings storage contract. Load by
// (cik, quarter) is the single documented read the diff step relies on.
type HoldingsRepository interface {
	Load(ctx context.Context, cik, quarter string) (*holdings.Document, error)
	Save(ctx context.Context, doc *holdings.Document) error
}

// HoldingsRepo persists per-(cik, quarter) holdings documents.
type HoldingsRepo struct {
	pool *pgxpool.Pool
}

// NewHoldingsRepo creates a repository on the shared pool.
func NewHoldingsRepo() *HoldingsRepo {
	return &HoldingsRepo{pool: GetPool()}
}

// Load returns the holdings document for (cik, quarter), or ErrNotFound.
func (r *HoldingsRepo) Load(ctx context.Context, cik, quarter string) (*holdings.Document, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}

	var data []byte
	err := r.pool.QueryRow(ctx,
		`SELECT doc FROM holdings WHERE cik = $1 AND quarter = $2`, cik, quarter,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("holdings %s/%s: %w", cik, quarter, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load holdings %s/%s: %w", cik, quarter, err)
	}

	var doc holdings.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal holdings %s/%s: %w", cik, quarter, err)
	}
	return &doc, nil
}

// Save upserts the document; an existing quarter is replaced wholesale,
// never merged.
func (r *HoldingsRepo) Save(ctx context.Context, doc *holdings.Document) error {
	if r.pool == nil {
		return fmt.Errorf("database pool not initialized")
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal holdings %s/%s: %w", doc.CIK, doc.Quarter, err)
	}

	query := `
		INSERT INTO holdings (cik, quarter, doc, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cik, quarter)
		DO UPDATE SET
			doc = EXCLUDED.doc,
			updated_at = EXCLUDED.updated_at;
	`
	if _, err := r.pool.Exec(ctx, query, doc.CIK, doc.Quarter, data, time.Now()); err != nil {
		return fmt.Errorf("failed to save holdings %s/%s: %w", doc.CIK, doc.Quarter, err)
	}
	return nil
}
