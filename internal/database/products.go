package database

import (
	"context"
	"fmt"
)

// FuzzyMatch is a fuzzy-search hit with its normalized similarity score
type FuzzyMatch struct {
	ProductID string
	Score     float64 // in [0,1]
}

// FuzzySearchProducts runs a trigram-similarity search over product titles and
// descriptions. Requires the pg_trgm extension and GIN trigram indexes on
// products(title) and products(description). The query text is always passed
// as a bound parameter.
func (s *Store) FuzzySearchProducts(ctx context.Context, query string, limit int) ([]FuzzyMatch, error) {
	if limit <= 0 {
		limit = 200
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id,
		       LEAST(1.0, GREATEST(similarity(title, $1), similarity(COALESCE(description, '')::text, $1)))::float8 AS score
		FROM products
		WHERE title % $1 OR description % $1
		ORDER BY score DESC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fuzzy search products: %w", err)
	}
	defer rows.Close()

	matches := make([]FuzzyMatch, 0, limit)
	for rows.Next() {
		var m FuzzyMatch
		if err := rows.Scan(&m.ProductID, &m.Score); err != nil {
			return nil, fmt.Errorf("scan fuzzy match: %w", err)
		}
		if m.Score < 0 {
			m.Score = 0
		}
		matches = append(matches, m)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate fuzzy matches: %w", rows.Err())
	}

	return matches, nil
}

// TopProductsByCategory returns products in a category ordered by popularity
func (s *Store) TopProductsByCategory(ctx context.Context, categoryID string, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = 200
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, title, COALESCE(description, ''), merchant_id, category_id, popularity
		FROM products
		WHERE category_id = $1
		ORDER BY popularity DESC
		LIMIT $2
	`, categoryID, limit)
	if err != nil {
		return nil, fmt.Errorf("query products by category: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0, limit)
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.MerchantID, &p.CategoryID, &p.Popularity); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate products: %w", rows.Err())
	}

	return products, nil
}

// TopProductsByPopularity returns the most popular products across the whole
// catalog. The ranker falls back to it when the cached global top-K is cold
// or unreachable.
func (s *Store) TopProductsByPopularity(ctx context.Context, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = 200
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, title, COALESCE(description, ''), merchant_id, category_id, popularity
		FROM products
		ORDER BY popularity DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query products by popularity: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0, limit)
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.MerchantID, &p.CategoryID, &p.Popularity); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate products: %w", rows.Err())
	}

	return products, nil
}

// ProductMetaByIDs bulk-fetches the hot-path product projection
func (s *Store) ProductMetaByIDs(ctx context.Context, ids []string) (map[string]ProductMeta, error) {
	result := make(map[string]ProductMeta, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, title, COALESCE(description, ''), merchant_id, category_id, popularity
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("query product meta: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var meta ProductMeta
		if err := rows.Scan(&id, &meta.Title, &meta.Description, &meta.MerchantID, &meta.CategoryID, &meta.Popularity); err != nil {
			return nil, fmt.Errorf("scan product meta: %w", err)
		}
		result[id] = meta
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate product meta: %w", rows.Err())
	}

	return result, nil
}

// AllProductIDs returns every product id. Used by the meta warmer; the
// catalog is read-mostly and bounded, so a full scan is acceptable offline.
func (s *Store) AllProductIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM products`)
	if err != nil {
		return nil, fmt.Errorf("query product ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan product id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
