package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/basel-ax/picturebook/internal/domain"
)

var (
	// ErrBookLimitReached is returned by Save when the store is full
	ErrBookLimitReached = errors.New("saved book limit reached")
	// ErrNotFound is returned when a book does not exist
	ErrNotFound = errors.New("book not found")
)

const booksSchema = `
	CREATE TABLE IF NOT EXISTS books (
		id         UUID PRIMARY KEY,
		title      TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS book_pages (
		book_id           UUID NOT NULL REFERENCES books(id) ON DELETE CASCADE,
		page_number       INTEGER NOT NULL,
		text              TEXT NOT NULL,
		illustration_idea TEXT NOT NULL,
		image_url         TEXT NOT NULL DEFAULT '',
		image_path        TEXT NOT NULL DEFAULT '',
		status            TEXT NOT NULL DEFAULT 'loading',
		PRIMARY KEY (book_id, page_number)
	)
`

// BookRepository stores generated picture books
type BookRepository interface {
	EnsureSchema(ctx context.Context) error
	Save(ctx context.Context, book *domain.SavedBook) error
	List(ctx context.Context) ([]domain.SavedBook, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.SavedBook, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteOldest(ctx context.Context) (bool, error)
}

// PostgresBookRepository implements BookRepository for PostgreSQL. At most
// maxBooks books are kept; Save refuses new books beyond that.
type PostgresBookRepository struct {
	db       *sql.DB
	maxBooks int
}

// NewPostgresBookRepository creates a new PostgreSQL book repository
func NewPostgresBookRepository(db *sql.DB, maxBooks int) *PostgresBookRepository {
	return &PostgresBookRepository{db: db, maxBooks: maxBooks}
}

// EnsureSchema creates the book tables when missing
func (r *PostgresBookRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, booksSchema); err != nil {
		return fmt.Errorf("create book tables: %w", err)
	}
	return nil
}

// Save stores the book and its pages in one transaction
func (r *PostgresBookRepository) Save(ctx context.Context, book *domain.SavedBook) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`).Scan(&count); err != nil {
		return fmt.Errorf("count books: %w", err)
	}
	if count >= r.maxBooks {
		return fmt.Errorf("%w: %d books stored", ErrBookLimitReached, count)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO books (id, title, created_at) VALUES ($1, $2, $3)`,
		book.ID.String(), book.Title, book.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert book: %w", err)
	}

	for _, p := range book.Pages {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO book_pages (book_id, page_number, text, illustration_idea, image_url, image_path, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			book.ID.String(), p.PageNumber, p.Text, p.IllustrationIdea, p.ImageURL, p.ImagePath, string(p.Status),
		); err != nil {
			return fmt.Errorf("insert page %d: %w", p.PageNumber, err)
		}
	}

	return tx.Commit()
}

// List returns all books, oldest first, with their pages
func (r *PostgresBookRepository) List(ctx context.Context) ([]domain.SavedBook, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, created_at
		FROM books
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []domain.SavedBook
	var ids []string
	for rows.Next() {
		var b domain.SavedBook
		if err := rows.Scan(&b.ID, &b.Title, &b.CreatedAt); err != nil {
			return nil, err
		}
		books = append(books, b)
		ids = append(ids, b.ID.String())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(books) == 0 {
		return nil, nil
	}

	pages, err := r.pages(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range books {
		books[i].Pages = pages[books[i].ID]
	}
	return books, nil
}

// Get returns one book with its pages
func (r *PostgresBookRepository) Get(ctx context.Context, id uuid.UUID) (*domain.SavedBook, error) {
	var b domain.SavedBook
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, created_at FROM books WHERE id = $1`, id.String(),
	).Scan(&b.ID, &b.Title, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	pages, err := r.pages(ctx, []string{id.String()})
	if err != nil {
		return nil, err
	}
	b.Pages = pages[b.ID]
	return &b, nil
}

// Delete removes a book; its pages go with it
func (r *PostgresBookRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteOldest removes the book with the earliest creation time. It reports
// false when there was nothing to delete.
func (r *PostgresBookRepository) DeleteOldest(ctx context.Context) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM books
		WHERE id = (SELECT id FROM books ORDER BY created_at ASC LIMIT 1)
	`)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PostgresBookRepository) pages(ctx context.Context, ids []string) (map[uuid.UUID][]domain.BookPage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT book_id, page_number, text, illustration_idea, image_url, image_path, status
		FROM book_pages
		WHERE book_id = ANY($1::uuid[])
		ORDER BY book_id, page_number ASC
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pages := make(map[uuid.UUID][]domain.BookPage)
	for rows.Next() {
		var (
			bookID uuid.UUID
			p      domain.BookPage
			status string
		)
		if err := rows.Scan(&bookID, &p.PageNumber, &p.Text, &p.IllustrationIdea, &p.ImageURL, &p.ImagePath, &status); err != nil {
			return nil, err
		}
		p.Status = domain.PageStatus(status)
		pages[bookID] = append(pages[bookID], p)
	}
	return pages, rows.Err()
}
