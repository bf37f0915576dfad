package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/basel-ax/picturebook/internal/domain"
	"github.com/basel-ax/picturebook/internal/repository"
)

func listBooks(ctx context.Context, books repository.BookRepository) ([]domain.SavedBook, error) {
	saved, err := books.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	log.Printf("%d saved books", len(saved))
	for _, b := range saved {
		log.Printf("  %s  %s  %q, %d pages", b.ID, b.CreatedAt.Format("2006-01-02 15:04"), b.Title, b.PageCount())
	}
	return saved, nil
}

func deleteBook(ctx context.Context, books repository.BookRepository, rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid book id %q: %w", rawID, err)
	}
	if err := books.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete book %s: %w", id, err)
	}
	log.Printf("Deleted book %s", id)
	return nil
}

func deleteOldestBook(ctx context.Context, books repository.BookRepository) error {
	deleted, err := books.DeleteOldest(ctx)
	if err != nil {
		return fmt.Errorf("delete oldest book: %w", err)
	}
	if !deleted {
		log.Println("No saved books to delete")
		return nil
	}
	log.Println("Deleted the oldest saved book")
	return nil
}

// keepBook handles a book that CreateBook could not store. When the store is
// full and evict is set, the oldest book makes room for it.
func keepBook(ctx context.Context, books repository.BookRepository, book *domain.SavedBook, createErr error, evict bool) error {
	if !errors.Is(createErr, repository.ErrBookLimitReached) || book == nil {
		return createErr
	}
	if !evict {
		return fmt.Errorf("%w (run with -delete-oldest or -delete-book to free space)", createErr)
	}
	deleted, err := books.DeleteOldest(ctx)
	if err != nil {
		return fmt.Errorf("delete oldest book: %w", err)
	}
	if !deleted {
		return createErr
	}
	log.Println("Store was full, deleted the oldest saved book")
	if err := books.Save(ctx, book); err != nil {
		return fmt.Errorf("failed to save book: %w", err)
	}
	log.Printf("Book saved: title=%s, pages=%d", book.Title, book.PageCount())
	return nil
}
