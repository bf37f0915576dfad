package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/basel-ax/picturebook/internal/domain"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 4, 3))))
	return buf.Bytes()
}

type fakeImagen struct {
	req    domain.ImageGenerationRequest
	images []domain.GeneratedImage
	err    error
}

func (f *fakeImagen) Generate(_ context.Context, req domain.ImageGenerationRequest) ([]domain.GeneratedImage, error) {
	f.req = req
	return f.images, f.err
}

type fakeGemini struct {
	result *domain.ContentResult
	err    error
}

func (f *fakeGemini) GenerateContent(context.Context, string) (*domain.ContentResult, error) {
	return f.result, f.err
}

// fakePicture answers each prompt from a function so tests can vary by call
type fakePicture struct {
	mu        sync.Mutex
	prompts   []string
	respond   func(prompt string) (*domain.ImagePayload, error)
	downloads map[string][]byte
}

func (f *fakePicture) Generate(_ context.Context, prompt string) (*domain.ImagePayload, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.respond(prompt)
}

func (f *fakePicture) Download(_ context.Context, url string) ([]byte, error) {
	data, ok := f.downloads[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func pngPayload(t *testing.T) *domain.ImagePayload {
	return &domain.ImagePayload{Format: "png", Image: base64.StdEncoding.EncodeToString(pngBytes(t))}
}

type fakePlot struct {
	prompt string
	pages  []domain.BookPage
	err    error
}

func (f *fakePlot) GenerateBook(_ context.Context, prompt string) ([]domain.BookPage, error) {
	f.prompt = prompt
	return f.pages, f.err
}

type fakeBooks struct {
	saved   []*domain.SavedBook
	saveErr error
}

func (f *fakeBooks) EnsureSchema(context.Context) error { return nil }

func (f *fakeBooks) Save(_ context.Context, book *domain.SavedBook) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, book)
	return nil
}

func (f *fakeBooks) List(context.Context) ([]domain.SavedBook, error) { return nil, nil }

func (f *fakeBooks) Get(context.Context, uuid.UUID) (*domain.SavedBook, error) { return nil, nil }

func (f *fakeBooks) Delete(context.Context, uuid.UUID) error { return nil }

func (f *fakeBooks) DeleteOldest(context.Context) (bool, error) { return false, nil }

type statusUpdate struct {
	id     int
	status string
}

type savedResult struct {
	id                   int
	format, base64, path string
}

type fakeQueue struct {
	ready     []domain.Image
	readyErr  error
	saveErr   error
	statusErr error
	enqueued []string
	statuses []statusUpdate
	results  []savedResult
}

func (f *fakeQueue) EnsureSchema(context.Context) error { return nil }

func (f *fakeQueue) Enqueue(_ context.Context, prompt string) (int, error) {
	f.enqueued = append(f.enqueued, prompt)
	return len(f.enqueued), nil
}

func (f *fakeQueue) ClaimReadyToGenerate(context.Context) ([]domain.Image, error) {
	return f.ready, f.readyErr
}

func (f *fakeQueue) UpdateStatus(_ context.Context, id int, status string) error {
	f.statuses = append(f.statuses, statusUpdate{id, status})
	return f.statusErr
}

func (f *fakeQueue) SaveResult(_ context.Context, id int, format, base64, path string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.results = append(f.results, savedResult{id, format, base64, path})
	return nil
}
