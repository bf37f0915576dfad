package domain

import "time"

// Queue statuses of an Image
const (
	StatusReadyToGenerate = "ReadyToGenerate"
	StatusGenerating      = "Generating"
	StatusGenerated       = "Generated"
	StatusFailed          = "Failed"
)

// Image represents a queued prompt and, once generated, its stored result
type Image struct {
	ID        int
	Prompt    string
	Status    string
	Format    string
	Base64    string
	Path      string
	CreatedAt time.Time
}

// ImagePayload is the JSON body returned by the picture endpoint. The
// endpoint answers either with an inline base64 image or with a URL.
type ImagePayload struct {
	Format   string `json:"format"`
	Image    string `json:"image"`
	ImageURL string `json:"image_url,omitempty"`
}

// HasImage reports whether the payload carries something usable
func (p *ImagePayload) HasImage() bool {
	return p != nil && (p.Image != "" || p.ImageURL != "")
}
