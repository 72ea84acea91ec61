package database

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the typed repository over the relational schema. Components take
// the narrow slice of its methods they need as an interface; Store is the
// single concrete implementation.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store over an existing connection pool
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// GetPool returns the underlying connection pool
func (s *Store) GetPool() *pgxpool.Pool {
	return s.pool
}
