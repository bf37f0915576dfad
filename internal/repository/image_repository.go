package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/basel-ax/picturebook/internal/domain"
)

const imagesSchema = `
	CREATE TABLE IF NOT EXISTS images (
		id         SERIAL PRIMARY KEY,
		prompt     TEXT NOT NULL,
		status     TEXT NOT NULL DEFAULT 'ReadyToGenerate',
		format     TEXT NOT NULL DEFAULT '',
		base64     TEXT NOT NULL DEFAULT '',
		path       TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// ImageRepository defines the interface for the prompt queue
type ImageRepository interface {
	EnsureSchema(ctx context.Context) error
	Enqueue(ctx context.Context, prompt string) (int, error)
	ClaimReadyToGenerate(ctx context.Context) ([]domain.Image, error)
	UpdateStatus(ctx context.Context, id int, status string) error
	SaveResult(ctx context.Context, id int, format, base64, path string) error
}

// PostgresImageRepository implements ImageRepository for PostgreSQL
type PostgresImageRepository struct {
	db *sql.DB
}

// NewPostgresImageRepository creates a new PostgreSQL image repository
func NewPostgresImageRepository(db *sql.DB) *PostgresImageRepository {
	return &PostgresImageRepository{db: db}
}

// EnsureSchema creates the images table when missing
func (r *PostgresImageRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, imagesSchema); err != nil {
		return fmt.Errorf("create images table: %w", err)
	}
	return nil
}

// Enqueue stores a prompt ready for generation and returns its id
func (r *PostgresImageRepository) Enqueue(ctx context.Context, prompt string) (int, error) {
	query := `
		INSERT INTO images (prompt, status)
		VALUES ($1, $2)
		RETURNING id
	`

	var id int
	if err := r.db.QueryRowContext(ctx, query, prompt, domain.StatusReadyToGenerate).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// ClaimReadyToGenerate moves every queued prompt to Generating and returns
// them oldest first. Rows locked by another processor are skipped, so each
// prompt is claimed by a single caller.
func (r *PostgresImageRepository) ClaimReadyToGenerate(ctx context.Context) ([]domain.Image, error) {
	query := `
		UPDATE images
		SET status = $1, updated_at = $2
		WHERE id IN (
			SELECT id
			FROM images
			WHERE status = $3
			AND prompt != ''
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, prompt, status, created_at
	`

	rows, err := r.db.QueryContext(ctx, query, domain.StatusGenerating, time.Now(), domain.StatusReadyToGenerate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []domain.Image
	for rows.Next() {
		var img domain.Image
		if err := rows.Scan(&img.ID, &img.Prompt, &img.Status, &img.CreatedAt); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// RETURNING does not keep the subquery order
	sort.SliceStable(images, func(i, j int) bool {
		if images[i].CreatedAt.Equal(images[j].CreatedAt) {
			return images[i].ID < images[j].ID
		}
		return images[i].CreatedAt.Before(images[j].CreatedAt)
	})
	return images, nil
}

// UpdateStatus updates the status of an image
func (r *PostgresImageRepository) UpdateStatus(ctx context.Context, id int, status string) error {
	query := `
		UPDATE images
		SET status = $1, updated_at = $2
		WHERE id = $3
	`

	_, err := r.db.ExecContext(ctx, query, status, time.Now(), id)
	return err
}

// SaveResult stores the generated payload and marks the image as generated
func (r *PostgresImageRepository) SaveResult(ctx context.Context, id int, format, base64, path string) error {
	query := `
		UPDATE images
		SET format = $1, base64 = $2, path = $3, status = $4, updated_at = $5
		WHERE id = $6
	`

	_, err := r.db.ExecContext(ctx, query, format, base64, path, domain.StatusGenerated, time.Now(), id)
	return err
}
