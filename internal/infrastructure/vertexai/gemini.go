package vertexai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/basel-ax/picturebook/internal/domain"
)

// GeminiGenerator asks a Gemini model for mixed text and image output
type GeminiGenerator struct {
	api   contentAPI
	model string
}

// NewGeminiGenerator wraps a Gen AI client
func NewGeminiGenerator(client *genai.Client, model string) *GeminiGenerator {
	return &GeminiGenerator{api: client.Models, model: model}
}

// GenerateContent implements domain.ContentGenerator
func (g *GeminiGenerator) GenerateContent(ctx context.Context, prompt string) (*domain.ContentResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, errors.New("prompt is required")
	}

	resp, err := g.api.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return nil, errors.New("no candidates returned from model")
	}

	result := &domain.ContentResult{}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		switch {
		case part.Text != "":
			result.Texts = append(result.Texts, part.Text)
		case part.InlineData != nil && len(part.InlineData.Data) > 0:
			result.Images = append(result.Images, domain.GeneratedImage{
				Data:     part.InlineData.Data,
				MIMEType: part.InlineData.MIMEType,
			})
		}
	}

	return result, nil
}
