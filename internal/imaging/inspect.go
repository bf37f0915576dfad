package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// ErrNotImage is returned when bytes cannot be decoded as any known image format
var ErrNotImage = errors.New("payload is not a decodable image")

// Inspection describes a decoded payload
type Inspection struct {
	Length     int
	FirstBytes []byte
	Header     []byte
	PNGHeader  bool
	Format     string
	Width      int
	Height     int
	Mode       string
}

// HeaderHex renders the header the way it is logged, e.g. [0x89 0x50 0x4e 0x47]
func (i *Inspection) HeaderHex() []string {
	out := make([]string, 0, len(i.Header))
	for _, b := range i.Header {
		out = append(out, fmt.Sprintf("0x%x", b))
	}
	return out
}

// Inspect examines the header of b and decodes its image configuration.
// The header fields are always filled; ErrNotImage is returned together with
// the partial inspection when the bytes are not an image.
func Inspect(b []byte) (*Inspection, error) {
	in := &Inspection{Length: len(b)}

	n := min(len(b), 20)
	in.FirstBytes = append([]byte(nil), b[:n]...)
	if len(b) >= len(pngMagic) {
		in.Header = append([]byte(nil), b[:len(pngMagic)]...)
		in.PNGHeader = HasPNGHeader(b)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return in, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	in.Format = format
	in.Width = cfg.Width
	in.Height = cfg.Height
	in.Mode = modeName(cfg.ColorModel)
	return in, nil
}

func modeName(m color.Model) string {
	if _, ok := m.(color.Palette); ok {
		return "P"
	}
	switch m {
	case color.RGBAModel, color.NRGBAModel:
		return "RGBA"
	case color.RGBA64Model, color.NRGBA64Model:
		return "RGBA64"
	case color.GrayModel:
		return "L"
	case color.Gray16Model:
		return "I;16"
	case color.YCbCrModel, color.NYCbCrAModel:
		return "YCbCr"
	case color.CMYKModel:
		return "CMYK"
	case color.AlphaModel, color.Alpha16Model:
		return "A"
	default:
		return "unknown"
	}
}
