package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/basel-ax/picturebook/internal/domain"
	"github.com/basel-ax/picturebook/internal/imaging"
	"github.com/basel-ax/picturebook/internal/prompts"
	"github.com/basel-ax/picturebook/internal/repository"
)

// QueueService generates images for prompts stored in the images table
type QueueService struct {
	repo      repository.ImageRepository
	images    *ImageGenerationService
	outputDir string
}

// NewQueueService creates a new queue service
func NewQueueService(repo repository.ImageRepository, images *ImageGenerationService, outputDir string) *QueueService {
	return &QueueService{repo: repo, images: images, outputDir: outputDir}
}

// Enqueue stores prompts for later generation and returns their ids
func (s *QueueService) Enqueue(ctx context.Context, batch []string) ([]int, error) {
	ids := make([]int, 0, len(batch))
	for _, p := range batch {
		id, err := s.repo.Enqueue(ctx, prompts.Truncate(p, prompts.MaxPromptLength))
		if err != nil {
			return ids, fmt.Errorf("enqueue prompt: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ProcessReady claims every queued prompt and generates each once. Failed
// generations are marked Failed; repository errors on one image do not stop
// the others. Prompts left unprocessed on cancellation are put back in the
// queue. It returns the number of images generated.
func (s *QueueService) ProcessReady(ctx context.Context) (int, error) {
	images, err := s.repo.ClaimReadyToGenerate(ctx)
	if err != nil {
		return 0, fmt.Errorf("claim ready images: %w", err)
	}

	generated := 0
	for i, img := range images {
		if ctx.Err() != nil {
			s.release(images[i:])
			return generated, ctx.Err()
		}
		if s.processOne(ctx, img) {
			generated++
		}
	}
	return generated, nil
}

func (s *QueueService) processOne(ctx context.Context, img domain.Image) bool {
	prompt := prompts.Truncate(img.Prompt, prompts.MaxPromptLength)
	if before, after := utf8.RuneCountInString(img.Prompt), utf8.RuneCountInString(prompt); after != before {
		log.Printf("Prompt for image ID %d was truncated from %d to %d characters", img.ID, before, after)
	}
	log.Printf("Processing image ID %d with prompt: %s", img.ID, prompt)

	res, err := s.images.requestImage(ctx, prompt, func(format string) string {
		return filepath.Join(s.outputDir, "queue", fmt.Sprintf("image_%d%s", img.ID, imaging.ExtensionFor(format)))
	})
	if err != nil {
		log.Printf("Error generating image ID %d: %v", img.ID, err)
		if ctx.Err() != nil {
			s.release([]domain.Image{img})
			return false
		}
		s.markFailed(ctx, img.ID)
		return false
	}

	if err := s.repo.SaveResult(ctx, img.ID, res.Format, base64.StdEncoding.EncodeToString(res.Data), res.Path); err != nil {
		log.Printf("Error saving result for image ID %d: %v", img.ID, err)
		s.markFailed(ctx, img.ID)
		return false
	}
	log.Printf("Successfully generated image ID %d at %s", img.ID, res.Path)
	return true
}

func (s *QueueService) markFailed(ctx context.Context, id int) {
	if err := s.repo.UpdateStatus(ctx, id, domain.StatusFailed); err != nil {
		log.Printf("Error updating status for image ID %d: %v", id, err)
	}
}

// release returns claimed images to the queue. It runs after ctx is done, so
// it uses its own short deadline.
func (s *QueueService) release(images []domain.Image) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, img := range images {
		if err := s.repo.UpdateStatus(ctx, img.ID, domain.StatusReadyToGenerate); err != nil {
			log.Printf("Error releasing image ID %d: %v", img.ID, err)
		}
	}
}
