package service

import (
	"context"
	"encoding/base64"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basel-ax/picturebook/internal/domain"
	"github.com/basel-ax/picturebook/internal/prompts"
)

func TestQueueEnqueue(t *testing.T) {
	repo := &fakeQueue{}
	svc := NewQueueService(repo, nil, t.TempDir())

	long := strings.Repeat("a", prompts.MaxPromptLength+1)
	ids, err := svc.Enqueue(context.Background(), []string{"first", long})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, ids)
	assert.Len(t, repo.enqueued[1], prompts.MaxPromptLength)
}

func TestQueueProcessReady(t *testing.T) {
	data := pngBytes(t)
	picture := &fakePicture{respond: func(prompt string) (*domain.ImagePayload, error) {
		if prompt == "broken" {
			return nil, errors.New("bad gateway")
		}
		return &domain.ImagePayload{Format: "png", Image: base64.StdEncoding.EncodeToString(data)}, nil
	}}
	repo := &fakeQueue{ready: []domain.Image{
		{ID: 1, Prompt: "a cookbook", Status: domain.StatusGenerating},
		{ID: 2, Prompt: "broken", Status: domain.StatusGenerating},
	}}
	out := t.TempDir()
	svc := NewQueueService(repo, NewImageGenerationService(imagenConfig, nil, nil, picture), out)

	n, err := svc.ProcessReady(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, repo.results, 1)
	assert.Equal(t, savedResult{
		id:     1,
		format: "png",
		base64: base64.StdEncoding.EncodeToString(data),
		path:   filepath.Join(out, "queue", "image_1.png"),
	}, repo.results[0])
	assert.FileExists(t, repo.results[0].path)
	assert.Equal(t, []statusUpdate{{2, domain.StatusFailed}}, repo.statuses)
}

func TestQueueProcessReadyRepositoryError(t *testing.T) {
	svc := NewQueueService(&fakeQueue{readyErr: errors.New("db down")}, nil, t.TempDir())
	_, err := svc.ProcessReady(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestQueueProcessReadySaveResultError(t *testing.T) {
	repo := &fakeQueue{
		ready:   []domain.Image{{ID: 4, Prompt: "a cookbook", Status: domain.StatusGenerating}},
		saveErr: errors.New("db down"),
	}
	svc := NewQueueService(repo, NewImageGenerationService(imagenConfig, nil, nil, &fakePicture{
		respond: func(string) (*domain.ImagePayload, error) { return pngPayload(t), nil },
	}), t.TempDir())

	n, err := svc.ProcessReady(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, []statusUpdate{{4, domain.StatusFailed}}, repo.statuses)
}

func TestQueueProcessReadyReleasesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	picture := &fakePicture{respond: func(string) (*domain.ImagePayload, error) {
		cancel()
		return nil, context.Canceled
	}}
	repo := &fakeQueue{ready: []domain.Image{
		{ID: 1, Prompt: "first", Status: domain.StatusGenerating},
		{ID: 2, Prompt: "second", Status: domain.StatusGenerating},
	}}
	svc := NewQueueService(repo, NewImageGenerationService(imagenConfig, nil, nil, picture), t.TempDir())

	n, err := svc.ProcessReady(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, n)
	assert.Empty(t, repo.results)
	assert.Equal(t, []statusUpdate{
		{1, domain.StatusReadyToGenerate},
		{2, domain.StatusReadyToGenerate},
	}, repo.statuses)
}

func TestQueueTruncatesMultibytePrompt(t *testing.T) {
	var got string
	picture := &fakePicture{respond: func(prompt string) (*domain.ImagePayload, error) {
		got = prompt
		return &domain.ImagePayload{Format: "png", Image: base64.StdEncoding.EncodeToString(pngBytes(t))}, nil
	}}
	long := strings.Repeat("絵", prompts.MaxPromptLength+5)
	repo := &fakeQueue{ready: []domain.Image{{ID: 5, Prompt: long, Status: domain.StatusGenerating}}}
	svc := NewQueueService(repo, NewImageGenerationService(imagenConfig, nil, nil, picture), t.TempDir())

	n, err := svc.ProcessReady(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, prompts.MaxPromptLength, utf8.RuneCountInString(got))
}
