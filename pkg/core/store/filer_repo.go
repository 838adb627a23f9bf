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

// ErrNotFound is returned when no document exists for the requested key.
var ErrNotFound = errors.New("not found")

// FilerRepository is the storage contract the orchestrator depends on.
type FilerRepository interface {
	Load(ctx context.Context, cik string) (*holdings.Filer, error)
	Save(ctx context.Context, filer *holdings.Filer) error
}

// FilerRepo persists Filer aggregates as JSONB documents.
type FilerRepo struct {
	pool *pgxpool.Pool
}

// NewFilerRepo creates a repository on the shared pool.
func NewFilerRepo() *FilerRepo {
	return &FilerRepo{pool: GetPool()}
}

// Load returns the Filer for a CIK, or ErrNotFound.
func (r *FilerRepo) Load(ctx context.Context, cik string) (*holdings.Filer, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}

	var doc []byte
	err := r.pool.QueryRow(ctx, `SELECT doc FROM filers WHERE cik = $1`, cik).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("filer %s: %w", cik, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load filer %s: %w", cik, err)
	}

	var filer holdings.Filer
	if err := json.Unmarshal(doc, &filer); err != nil {
		return nil, fmt.Errorf("failed to unmarshal filer %s: %w", cik, err)
	}
	return &filer, nil
}

// Save upserts the Filer document keyed by CIK.
func (r *FilerRepo) Save(ctx context.Context, filer *holdings.Filer) error {
	if r.pool == nil {
		return fmt.Errorf("database pool not initialized")
	}

	doc, err := json.Marshal(filer)
	if err != nil {
		return fmt.Errorf("failed to marshal filer %s: %w", filer.CIK, err)
	}

	query := `
		INSERT INTO filers (cik, doc, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (cik)
		DO UPDATE SET
			doc = EXCLUDED.doc,
			updated_at = EXCLUDED.updated_at;
	`
	if _, err := r.pool.Exec(ctx, query, filer.CIK, doc, time.Now()); err != nil {
		return fmt.Errorf("failed to save filer %s: %w", filer.CIK, err)
	}
	return nil
}
