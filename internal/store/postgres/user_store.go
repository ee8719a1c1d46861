package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/signalist/internal/domain"
)

// UserStore implements domain.UserDirectory using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new UserStore.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// ResolveContacts loads every requested user in one query. Users that do not
// exist or have no e-mail are left out of the result.
func (s *UserStore) ResolveContacts(ctx context.Context, userIDs []string) (map[string]domain.Contact, error) {
	out := make(map[string]domain.Contact, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, email, name FROM users WHERE id = ANY($1) AND email <> ''`,
		userIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: resolve contacts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c domain.Contact
		if err := rows.Scan(&c.UserID, &c.Email, &c.Name); err != nil {
			return nil, fmt.Errorf("postgres: scan contact: %w", err)
		}
		out[c.UserID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate contacts: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.UserDirectory = (*UserStore)(nil)
