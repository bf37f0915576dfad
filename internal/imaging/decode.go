// Package imaging decodes, inspects and stores image payloads.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrEmptyPayload is returned when there is nothing to decode
var ErrEmptyPayload = errors.New("empty image payload")

var dataURLPrefix = regexp.MustCompile(`^data:image/[^;]+;base64,`)

// pngMagic is the leading signature of every PNG file
var pngMagic = []byte{0x89, 0x50, 0x4E, 0x47}

// DecodeBase64 decodes a base64 image payload. Whitespace anywhere in the
// input and a data URL prefix are ignored; unpadded input is accepted.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = dataURLPrefix.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return nil, ErrEmptyPayload
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); rawErr == nil {
		return raw, nil
	}
	return nil, fmt.Errorf("decode base64: %w", err)
}

// HasPNGHeader reports whether b starts with the PNG magic number 89 50 4E 47
func HasPNGHeader(b []byte) bool {
	return len(b) >= len(pngMagic) && bytes.Equal(b[:len(pngMagic)], pngMagic)
}

// ExtensionFor maps a format name or MIME type to a file extension
func ExtensionFor(format string) string {
	f := strings.ToLower(strings.TrimSpace(format))
	f = strings.TrimPrefix(f, "image/")
	switch f {
	case "jpeg", "jpg":
		return ".jpg"
	case "gif":
		return ".gif"
	case "webp":
		return ".webp"
	default:
		return ".png"
	}
}
