package domain

import (
	"time"

	"github.com/google/uuid"
)

// PageStatus tracks the illustration of a single page
type PageStatus string

const (
	PageLoading PageStatus = "loading"
	PageSuccess PageStatus = "success"
	PageFailed  PageStatus = "failed"
)

// BookPage is one page of a picture book
type BookPage struct {
	PageNumber       int
	Text             string
	IllustrationIdea string
	ImageURL         string
	ImagePath        string
	Status           PageStatus
}

// HasImage reports whether the page has been illustrated
func (p BookPage) HasImage() bool {
	return p.ImageURL != "" || p.ImagePath != ""
}

// SavedBook is a stored picture book
type SavedBook struct {
	ID        uuid.UUID
	Title     string
	CreatedAt time.Time
	Pages     []BookPage
}

// PageCount returns the number of pages in the book
func (b *SavedBook) PageCount() int {
	return len(b.Pages)
}
