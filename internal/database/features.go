package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Feature namespaces used by the CF trainer
const (
	NamespaceUserFactors    = "user_factors"
	NamespaceProductFactors = "product_factors"
)

// UpsertFeatures persists latent-factor vectors for a namespace in batches.
// Vectors are stored as JSON arrays so the schema stays driver-agnostic.
func (s *Store) UpsertFeatures(ctx context.Context, namespace string, vectors map[string][]float64) error {
	const batchSize = 500

	keys := make([]string, 0, len(vectors))
	for key := range vectors {
		keys = append(keys, key)
	}

	for start := 0; start < len(keys); start += batchSize {
		end := start + batchSize
		if end > len(keys) {
			end = len(keys)
		}

		batch := &pgx.Batch{}
		for _, key := range keys[start:end] {
			value, err := json.Marshal(vectors[key])
			if err != nil {
				return fmt.Errorf("marshal feature vector %s/%s: %w", namespace, key, err)
			}
			batch.Queue(`
				INSERT INTO feature_store (key, namespace, value, updated_at)
				VALUES ($1, $2, $3, NOW())
				ON CONFLICT (key, namespace) DO UPDATE SET
					value = EXCLUDED.value,
					updated_at = NOW()
			`, key, namespace, value)
		}

		if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert features batch: %w", err)
		}
	}
	return nil
}

// LoadFeatures loads all vectors in a namespace. Vectors whose dimension
// differs from dim are skipped; a change of latent dimension invalidates the
// whole namespace and the trainer rewrites it on the next run.
func (s *Store) LoadFeatures(ctx context.Context, namespace string, dim int) (map[string][]float64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT key, value
		FROM feature_store
		WHERE namespace = $1
	`, namespace)
	if err != nil {
		return nil, fmt.Errorf("query features: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]float64)
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("scan feature row: %w", err)
		}

		var vec []float64
		if err := json.Unmarshal(raw, &vec); err != nil {
			continue // unreadable blob, trainer will overwrite
		}
		if dim > 0 && len(vec) != dim {
			continue
		}
		result[key] = vec
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate feature rows: %w", rows.Err())
	}

	return result, nil
}
