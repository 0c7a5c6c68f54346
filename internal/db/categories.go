package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/mailpilot/internal/models"
)

// SaveCategory inserts a category or updates the one with the same name.
// Updating keeps the original position in the set.
func SaveCategory(ctx context.Context, pool *pgxpool.Pool, category *models.Category) error {
	err := pool.QueryRow(ctx, `
		INSERT INTO categories (user_id, name, description, tone, template, custom_prompt)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, name) DO UPDATE SET
			description = EXCLUDED.description,
			tone = EXCLUDED.tone,
			template = EXCLUDED.template,
			custom_prompt = EXCLUDED.custom_prompt
		RETURNING id, created_at
	`,
		category.UserID,
		category.Name,
		category.Description,
		category.Tone,
		category.Template,
		category.CustomPrompt,
	).Scan(&category.ID, &category.CreatedAt)

	if err != nil {
		return storageError("save category", err)
	}

	return nil
}

// LoadCategorySet returns the user's categories in insertion order. The first
// element is the fallback when the classifier names an unknown category.
func LoadCategorySet(ctx context.Context, pool *pgxpool.Pool, userID string) ([]models.Category, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, user_id, name, description, tone, template, custom_prompt, created_at
		FROM categories
		WHERE user_id = $1
		ORDER BY position
	`, userID)
	if err != nil {
		return nil, storageError("load category set", err)
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(
			&c.ID,
			&c.UserID,
			&c.Name,
			&c.Description,
			&c.Tone,
			&c.Template,
			&c.CustomPrompt,
			&c.CreatedAt,
		); err != nil {
			return nil, storageError("load category set", err)
		}
		categories = append(categories, c)
	}

	if err := rows.Err(); err != nil {
		return nil, storageError("load category set", err)
	}

	return categories, nil
}
