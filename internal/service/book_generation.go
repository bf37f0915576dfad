package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/basel-ax/picturebook/internal/domain"
	"github.com/basel-ax/picturebook/internal/imaging"
	"github.com/basel-ax/picturebook/internal/infrastructure/plotapi"
	"github.com/basel-ax/picturebook/internal/repository"
)

const (
	titleLength  = 20
	defaultTitle = "新しい絵本"
)

// BookOptions configures BookGenerationService
type BookOptions struct {
	CharacterPrefix string
	PageDelay       time.Duration
	OutputDir       string
}

// BookGenerationService writes a picture book and illustrates it page by page
type BookGenerationService struct {
	plot   domain.PlotClient
	images *ImageGenerationService
	books  repository.BookRepository
	opts   BookOptions

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewBookGenerationService creates a new book generation service. books may
// be nil, in which case finished books are not stored.
func NewBookGenerationService(plot domain.PlotClient, images *ImageGenerationService, books repository.BookRepository, opts BookOptions) *BookGenerationService {
	return &BookGenerationService{
		plot:   plot,
		images: images,
		books:  books,
		opts:   opts,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// GenerateBook asks the plot endpoint for pageCount pages on the given theme
func (s *BookGenerationService) GenerateBook(ctx context.Context, pageCount int, theme string) ([]domain.BookPage, error) {
	if pageCount < 1 {
		return nil, fmt.Errorf("page count must be positive, got %d", pageCount)
	}

	pages, err := s.plot.GenerateBook(ctx, plotapi.BuildPrompt(pageCount, theme))
	if err != nil {
		return nil, fmt.Errorf("failed to generate book: %w", err)
	}
	if len(pages) == 0 {
		return nil, errors.New("book has no pages")
	}

	log.Println("=== Book contents ===")
	for _, p := range pages {
		log.Printf("Page %d:", p.PageNumber)
		log.Printf("  Text: %s", p.Text)
		log.Printf("  Illustration idea: %s", p.IllustrationIdea)
	}
	return pages, nil
}

// IllustrateBook generates one image per page, in order, pausing PageDelay
// between pages. A page whose image cannot be produced is marked failed and
// the next page is attempted. Images are written under dir.
func (s *BookGenerationService) IllustrateBook(ctx context.Context, dir string, pages []domain.BookPage) ([]domain.BookPage, error) {
	out := make([]domain.BookPage, len(pages))
	copy(out, pages)

	for i := range out {
		page := &out[i]
		prompt := s.opts.CharacterPrefix + page.IllustrationIdea

		res, err := s.images.requestImage(ctx, prompt, func(format string) string {
			return filepath.Join(dir, fmt.Sprintf("page_%02d%s", page.PageNumber, imaging.ExtensionFor(format)))
		})
		if err != nil {
			if ctx.Err() != nil {
				markFailed(out[i:])
				return out, ctx.Err()
			}
			log.Printf("Image generation failed (page %d): %v", page.PageNumber, err)
			page.Status = domain.PageFailed
		} else {
			page.ImagePath = res.Path
			page.ImageURL = res.SourceURL
			page.Status = domain.PageSuccess
		}

		if i < len(out)-1 {
			if err := s.sleep(ctx, s.opts.PageDelay); err != nil {
				markFailed(out[i+1:])
				return out, err
			}
		}
	}
	return out, nil
}

// CreateBook runs the whole flow: plot, illustrations and storage. The book
// is returned even when storing it fails.
func (s *BookGenerationService) CreateBook(ctx context.Context, pageCount int, theme string) (*domain.SavedBook, error) {
	pages, err := s.GenerateBook(ctx, pageCount, theme)
	if err != nil {
		return nil, err
	}

	book := &domain.SavedBook{
		ID:        uuid.New(),
		CreatedAt: s.now(),
	}
	dir := filepath.Join(s.opts.OutputDir, "books", book.ID.String())

	book.Pages, err = s.IllustrateBook(ctx, dir, pages)
	book.Title = Title(book.Pages)
	if err != nil {
		return book, err
	}

	if s.books == nil {
		return book, nil
	}
	if err := s.books.Save(ctx, book); err != nil {
		return book, fmt.Errorf("failed to save book: %w", err)
	}
	log.Printf("Book saved: title=%s, pages=%d", book.Title, book.PageCount())
	return book, nil
}

// Title derives a book title from the text of its first page
func Title(pages []domain.BookPage) string {
	if len(pages) == 0 || pages[0].Text == "" {
		return defaultTitle
	}
	text := pages[0].Text
	if utf8.RuneCountInString(text) > titleLength {
		return string([]rune(text)[:titleLength]) + "..."
	}
	return text
}

func markFailed(pages []domain.BookPage) {
	for i := range pages {
		if pages[i].Status != domain.PageSuccess {
			pages[i].Status = domain.PageFailed
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
