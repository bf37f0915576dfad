package domain

import (
	"context"
)

// ImageGenerationRequest represents the parameters for an SDK image generation call
type ImageGenerationRequest struct {
	Prompt            string
	Model             string
	NumberOfImages    int
	AspectRatio       string
	SafetyFilterLevel string
	PersonGeneration  string
	AddWatermark      bool
}

// GeneratedImage is an in-memory image returned by a generation backend
type GeneratedImage struct {
	Data     []byte
	MIMEType string
}

// ContentResult holds the mixed output of a multimodal model
type ContentResult struct {
	Texts  []string
	Images []GeneratedImage
}

// ImageGenerator produces images from a fully specified request
type ImageGenerator interface {
	Generate(ctx context.Context, req ImageGenerationRequest) ([]GeneratedImage, error)
}

// ContentGenerator produces text and images from a prompt
type ContentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (*ContentResult, error)
}

// PictureClient posts a prompt to the remote picture endpoint
type PictureClient interface {
	Generate(ctx context.Context, prompt string) (*ImagePayload, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// PlotClient asks the remote plot endpoint for the pages of a book
type PlotClient interface {
	GenerateBook(ctx context.Context, prompt string) ([]BookPage, error)
}
