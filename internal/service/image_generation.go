package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/basel-ax/picturebook/internal/config"
	"github.com/basel-ax/picturebook/internal/domain"
	"github.com/basel-ax/picturebook/internal/imaging"
)

var (
	// ErrBackendNotConfigured is returned when a workflow's generator is missing
	ErrBackendNotConfigured = errors.New("generation backend not configured")
	// ErrEmptyPrompt is returned before any network call for blank prompts
	ErrEmptyPrompt = errors.New("prompt is required")
	// ErrNoImage is returned when a backend answered without an image
	ErrNoImage = errors.New("no image in response")
)

// Result describes an image that was generated and written to disk
type Result struct {
	Path       string
	Bytes      int
	SHA256     string
	Format     string
	SourceURL  string
	Data       []byte
	Inspection *imaging.Inspection
	Texts      []string
}

// ImageGenerationService runs the single-pass generation workflows
type ImageGenerationService struct {
	imagen  domain.ImageGenerator
	gemini  domain.ContentGenerator
	picture domain.PictureClient
	config  config.ImagenConfig
}

// NewImageGenerationService creates a new image generation service. Any of
// the backends may be nil when the matching workflow is not used.
func NewImageGenerationService(cfg config.ImagenConfig, imagen domain.ImageGenerator, gemini domain.ContentGenerator, picture domain.PictureClient) *ImageGenerationService {
	return &ImageGenerationService{
		imagen:  imagen,
		gemini:  gemini,
		picture: picture,
		config:  cfg,
	}
}

// GenerateWithImagen calls Imagen with the configured fixed parameters and
// saves the first image to path.
func (s *ImageGenerationService) GenerateWithImagen(ctx context.Context, prompt, path string) (*Result, error) {
	if s.imagen == nil {
		return nil, fmt.Errorf("imagen: %w", ErrBackendNotConfigured)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	req := domain.ImageGenerationRequest{
		Prompt:            prompt,
		Model:             s.config.Model,
		NumberOfImages:    s.config.NumberOfImages,
		AspectRatio:       s.config.AspectRatio,
		SafetyFilterLevel: s.config.SafetyFilterLevel,
		PersonGeneration:  s.config.PersonGeneration,
		AddWatermark:      s.config.AddWatermark,
	}
	images, err := s.imagen.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to generate image: %w", err)
	}
	if len(images) == 0 {
		return nil, ErrNoImage
	}

	result, err := saveGenerated(images[0], path)
	if err != nil {
		return nil, err
	}
	log.Printf("Image saved as %s", result.Path)
	return result, nil
}

// GenerateWithGemini asks the Gemini model for text and image output. Text
// parts are logged; the first image is saved to path.
func (s *ImageGenerationService) GenerateWithGemini(ctx context.Context, prompt, path string) (*Result, error) {
	if s.gemini == nil {
		return nil, fmt.Errorf("gemini: %w", ErrBackendNotConfigured)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	content, err := s.gemini.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	for _, text := range content.Texts {
		log.Println(text)
	}
	if len(content.Images) == 0 {
		return nil, ErrNoImage
	}
	if len(content.Images) > 1 {
		log.Printf("Model returned %d images, keeping the first", len(content.Images))
	}

	result, err := saveGenerated(content.Images[0], path)
	if err != nil {
		return nil, err
	}
	result.Texts = content.Texts
	log.Printf("Image saved as %s", result.Path)
	return result, nil
}

// RequestImage posts the prompt to the picture endpoint, decodes and checks
// the returned payload and saves it to path.
func (s *ImageGenerationService) RequestImage(ctx context.Context, prompt, path string) (*Result, error) {
	return s.requestImage(ctx, prompt, func(string) string { return path })
}

// requestImage is RequestImage with the destination chosen once the payload
// format is known.
func (s *ImageGenerationService) requestImage(ctx context.Context, prompt string, pathFor func(format string) string) (*Result, error) {
	if s.picture == nil {
		return nil, fmt.Errorf("picture endpoint: %w", ErrBackendNotConfigured)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	payload, err := s.picture.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to request image: %w", err)
	}
	log.Printf("Response format: %s", payload.Format)

	var data []byte
	if payload.Image != "" {
		logBase64(payload.Image)
		data, err = imaging.DecodeBase64(payload.Image)
		if err != nil {
			return nil, err
		}
	} else {
		log.Printf("Image URL: %s", payload.ImageURL)
		data, err = s.picture.Download(ctx, payload.ImageURL)
		if err != nil {
			return nil, fmt.Errorf("failed to download image: %w", err)
		}
	}
	log.Printf("Decoded bytes length: %d", len(data))

	inspection, err := imaging.Inspect(data)
	logInspection(inspection)
	if err != nil {
		log.Printf("Cannot open as image: %v", err)
		return nil, err
	}
	log.Println("Image opened successfully")
	log.Printf("Image size: (%d, %d)", inspection.Width, inspection.Height)
	log.Printf("Image mode: %s", inspection.Mode)

	format := inspection.Format
	if format == "" {
		format = payload.Format
	}
	saved, err := imaging.Save(pathFor(format), data)
	if err != nil {
		return nil, err
	}
	log.Printf("Image saved as %s", saved.Path)

	return &Result{
		Path:       saved.Path,
		Bytes:      saved.Bytes,
		SHA256:     saved.SHA256,
		Format:     format,
		SourceURL:  payload.ImageURL,
		Data:       data,
		Inspection: inspection,
	}, nil
}

func saveGenerated(img domain.GeneratedImage, path string) (*Result, error) {
	if len(img.Data) == 0 {
		return nil, ErrNoImage
	}

	inspection, err := imaging.Inspect(img.Data)
	if err != nil {
		log.Printf("Generated bytes did not decode as an image (%s): %v", img.MIMEType, err)
	}
	format := inspection.Format
	if format == "" {
		format = strings.TrimPrefix(img.MIMEType, "image/")
	}

	saved, err := imaging.Save(path, img.Data)
	if err != nil {
		return nil, err
	}
	return &Result{
		Path:       saved.Path,
		Bytes:      saved.Bytes,
		SHA256:     saved.SHA256,
		Format:     format,
		Data:       img.Data,
		Inspection: inspection,
	}, nil
}

func logBase64(b64 string) {
	log.Printf("Base64 length: %d", len(b64))
	log.Printf("Base64 starts with: %s", b64[:min(len(b64), 50)])
	log.Printf("Base64 ends with: %s", b64[max(len(b64)-50, 0):])
}

func logInspection(in *imaging.Inspection) {
	if in == nil {
		return
	}
	log.Printf("First 20 bytes: %v", in.FirstBytes)
	if in.Header == nil {
		return
	}
	log.Printf("File header: %v", in.HeaderHex())
	if in.PNGHeader {
		log.Println("Valid PNG header detected")
	} else {
		log.Println("Invalid PNG header - this might not be a valid image")
	}
}
