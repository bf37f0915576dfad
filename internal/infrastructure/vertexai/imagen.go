package vertexai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/basel-ax/picturebook/internal/domain"
)

// ErrNoImage is returned when the model answers without image bytes
var ErrNoImage = errors.New("no image returned from model")

// ImagenGenerator calls an Imagen model through GenerateImages
type ImagenGenerator struct {
	api imagesAPI
}

// NewImagenGenerator wraps a Gen AI client
func NewImagenGenerator(client *genai.Client) *ImagenGenerator {
	return &ImagenGenerator{api: client.Models}
}

// Generate implements domain.ImageGenerator
func (g *ImagenGenerator) Generate(ctx context.Context, req domain.ImageGenerationRequest) ([]domain.GeneratedImage, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("prompt is required")
	}

	resp, err := g.api.GenerateImages(ctx, req.Model, req.Prompt, imagesConfig(req))
	if err != nil {
		return nil, fmt.Errorf("failed to generate images: %w", err)
	}

	var (
		images  []domain.GeneratedImage
		reasons []string
	)
	for _, gi := range resp.GeneratedImages {
		if gi == nil {
			continue
		}
		if gi.Image == nil || len(gi.Image.ImageBytes) == 0 {
			if gi.RAIFilteredReason != "" {
				reasons = append(reasons, gi.RAIFilteredReason)
			}
			continue
		}
		mime := gi.Image.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		images = append(images, domain.GeneratedImage{Data: gi.Image.ImageBytes, MIMEType: mime})
	}

	if len(images) == 0 {
		if len(reasons) > 0 {
			return nil, fmt.Errorf("%w: filtered: %s", ErrNoImage, strings.Join(reasons, "; "))
		}
		return nil, ErrNoImage
	}
	return images, nil
}

func imagesConfig(req domain.ImageGenerationRequest) *genai.GenerateImagesConfig {
	n := req.NumberOfImages
	if n < 1 {
		n = 1
	}
	return &genai.GenerateImagesConfig{
		NumberOfImages:    int32(n),
		AspectRatio:       req.AspectRatio,
		SafetyFilterLevel: genai.SafetyFilterLevel(req.SafetyFilterLevel),
		PersonGeneration:  genai.PersonGeneration(req.PersonGeneration),
		AddWatermark:      req.AddWatermark,
		IncludeRAIReason:  true,
	}
}
