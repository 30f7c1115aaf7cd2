package directory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	id "schooladmin/pkg/domain"
)

// PostgresResolver reads names from the users table.
type PostgresResolver struct {
	db *sql.DB
}

func NewPostgresResolver(db *sql.DB) *PostgresResolver {
	return &PostgresResolver{db: db}
}

func (r *PostgresResolver) ResolveNames(ctx context.Context, ids []id.UserID) (map[id.UserID]string, error) {
	out := make(map[id.UserID]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, u := range ids {
		keys[i] = u.String()
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, first_name, last_name FROM users WHERE id = ANY($1::uuid[])`,
		pq.Array(keys),
	)
	if err != nil {
		return nil, fmt.Errorf("query user names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rawID       string
			first, last string
		)
		if err := rows.Scan(&rawID, &first, &last); err != nil {
			return nil, fmt.Errorf("scan user name: %w", err)
		}
		userID, err := id.ParseUserID(rawID)
		if err != nil {
			return nil, fmt.Errorf("parse user id %q: %w", rawID, err)
		}
		if name := DisplayName(first, last); name != "" {
			out[userID] = name
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user names: %w", err)
	}
	return out, nil
}
