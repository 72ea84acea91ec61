package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// InsertInteraction appends one interaction row. Rows are never mutated or
// deleted on the hot path; retention is handled by the cleanup job.
func (s *Store) InsertInteraction(ctx context.Context, in Interaction) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO interactions (id, user_id, product_id, type, value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, in.ID, in.UserID, in.ProductID, string(in.Type), in.Value, in.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

// ProductScore pairs a product with an aggregated score
type ProductScore struct {
	ProductID string
	Score     float64
}

// MerchantScore pairs a merchant with an aggregated score
type MerchantScore struct {
	MerchantID string
	Score      float64
}

// AggregateProductPopularity computes the weighted interaction sum per
// product over the window, highest first. Weights: VIEW 0.5, CLICK 1,
// CART 3, PURCHASE 8.
func (s *Store) AggregateProductPopularity(ctx context.Context, since time.Time, limit int) ([]ProductScore, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT product_id,
		       SUM(value * CASE type
		           WHEN 'VIEW' THEN 0.5
		           WHEN 'CLICK' THEN 1
		           WHEN 'CART' THEN 3
		           WHEN 'PURCHASE' THEN 8
		           ELSE 0 END)::float8 AS score
		FROM interactions
		WHERE created_at >= $1
		GROUP BY product_id
		ORDER BY score DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("aggregate product popularity: %w", err)
	}
	defer rows.Close()

	scores := make([]ProductScore, 0)
	for rows.Next() {
		var ps ProductScore
		if err := rows.Scan(&ps.ProductID, &ps.Score); err != nil {
			return nil, fmt.Errorf("scan product score: %w", err)
		}
		scores = append(scores, ps)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate product scores: %w", rows.Err())
	}

	return scores, nil
}

// AggregateMerchantPopularity rolls product popularity up to merchants over
// the same window and weight map.
func (s *Store) AggregateMerchantPopularity(ctx context.Context, since time.Time, limit int) ([]MerchantScore, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.merchant_id,
		       SUM(i.value * CASE i.type
		           WHEN 'VIEW' THEN 0.5
		           WHEN 'CLICK' THEN 1
		           WHEN 'CART' THEN 3
		           WHEN 'PURCHASE' THEN 8
		           ELSE 0 END)::float8 AS score
		FROM interactions i
		JOIN products p ON p.id = i.product_id
		WHERE i.created_at >= $1
		GROUP BY p.merchant_id
		ORDER BY score DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("aggregate merchant popularity: %w", err)
	}
	defer rows.Close()

	scores := make([]MerchantScore, 0)
	for rows.Next() {
		var ms MerchantScore
		if err := rows.Scan(&ms.MerchantID, &ms.Score); err != nil {
			return nil, fmt.Errorf("scan merchant score: %w", err)
		}
		scores = append(scores, ms)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate merchant scores: %w", rows.Err())
	}

	return scores, nil
}

// UpdateProductPopularity writes aggregated popularity back in batches
func (s *Store) UpdateProductPopularity(ctx context.Context, scores []ProductScore) error {
	const batchSize = 500

	for start := 0; start < len(scores); start += batchSize {
		end := start + batchSize
		if end > len(scores) {
			end = len(scores)
		}

		batch := &pgx.Batch{}
		for _, ps := range scores[start:end] {
			batch.Queue(`
				UPDATE products SET popularity = $2, updated_at = NOW()
				WHERE id = $1
			`, ps.ProductID, ps.Score)
		}

		if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("update product popularity batch: %w", err)
		}
	}
	return nil
}

// UpdateMerchantPopularity writes aggregated merchant popularity in batches
func (s *Store) UpdateMerchantPopularity(ctx context.Context, scores []MerchantScore) error {
	const batchSize = 500

	for start := 0; start < len(scores); start += batchSize {
		end := start + batchSize
		if end > len(scores) {
			end = len(scores)
		}

		batch := &pgx.Batch{}
		for _, ms := range scores[start:end] {
			batch.Queue(`
				UPDATE merchants SET popularity = $2
				WHERE id = $1
			`, ms.MerchantID, ms.Score)
		}

		if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("update merchant popularity batch: %w", err)
		}
	}
	return nil
}

// TrainingTriple is one (user, product, summed weight) observation for the
// CF trainer. Anonymous interactions group under the "anon" pseudo-user.
type TrainingTriple struct {
	UserID    string
	ProductID string
	Weight    float64
}

// LoadTrainingTriples loads grouped interaction weights for training, capped
// at maxRows. Ordering is fixed so training is reproducible.
func (s *Store) LoadTrainingTriples(ctx context.Context, since time.Time, maxRows int) ([]TrainingTriple, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT COALESCE(user_id, 'anon') AS uid,
		       product_id,
		       SUM(value * CASE type
		           WHEN 'VIEW' THEN 0.5
		           WHEN 'CLICK' THEN 1
		           WHEN 'CART' THEN 3
		           WHEN 'PURCHASE' THEN 8
		           ELSE 0 END)::float8 AS weight
		FROM interactions
		WHERE created_at >= $1
		GROUP BY uid, product_id
		ORDER BY uid, product_id
		LIMIT $2
	`, since, maxRows)
	if err != nil {
		return nil, fmt.Errorf("load training triples: %w", err)
	}
	defer rows.Close()

	triples := make([]TrainingTriple, 0)
	for rows.Next() {
		var t TrainingTriple
		if err := rows.Scan(&t.UserID, &t.ProductID, &t.Weight); err != nil {
			return nil, fmt.Errorf("scan training triple: %w", err)
		}
		triples = append(triples, t)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate training triples: %w", rows.Err())
	}

	return triples, nil
}
