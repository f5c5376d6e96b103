package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/loginguard/internal/database"
	"github.com/BradenHooton/loginguard/internal/fraud"
	"github.com/jackc/pgx/v5"
)

// snapshotsKept bounds the fraud_model_snapshots table
const snapshotsKept = 5

// FraudModelRepository stores fraud model snapshots in Postgres. The newest
// row is the live snapshot.
type FraudModelRepository struct {
	db *database.DB
}

// NewFraudModelRepository creates a new FraudModelRepository
func NewFraudModelRepository(db *database.DB) *FraudModelRepository {
	return &FraudModelRepository{db: db}
}

func (r *FraudModelRepository) Location() string {
	return "postgres:fraud_model_snapshots"
}

func (r *FraudModelRepository) Load(ctx context.Context) ([]byte, error) {
	query := `SELECT payload FROM fraud_model_snapshots ORDER BY created_at DESC, id DESC LIMIT 1`

	var payload []byte
	err := r.db.Pool.QueryRow(ctx, query).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fraud.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load fraud model snapshot: %w", err)
	}
	return payload, nil
}

// Save inserts a new snapshot and prunes old ones in the same transaction
func (r *FraudModelRepository) Save(ctx context.Context, data []byte) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO fraud_model_snapshots (payload) VALUES ($1)`, data); err != nil {
			return fmt.Errorf("failed to insert fraud model snapshot: %w", err)
		}

		prune := `
			DELETE FROM fraud_model_snapshots
			WHERE id NOT IN (
				SELECT id FROM fraud_model_snapshots ORDER BY created_at DESC, id DESC LIMIT $1
			)
		`
		if _, err := tx.Exec(ctx, prune, snapshotsKept); err != nil {
			return fmt.Errorf("failed to prune fraud model snapshots: %w", err)
		}
		return nil
	})
}
