package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// GetOrCreateUser returns the id of the user with the given email, creating
// the user on first sight.
func GetOrCreateUser(ctx context.Context, pool *pgxpool.Pool, email string) (string, error) {
	var userID string

	err := pool.QueryRow(ctx, `
		INSERT INTO users (email)
		VALUES ($1)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id
	`, email).Scan(&userID)

	if err != nil {
		return "", storageError("get or create user", err)
	}

	return userID, nil
}
