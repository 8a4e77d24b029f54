// ABOUTME: Poster image decoding with magic-byte format sniffing
// ABOUTME: Decodes PNG/JPEG and scales into the fixed framebuffer
package poster

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

// Framebuffer dimensions of the on-screen poster slot.
const (
	Width  = 110
	Height = 160
)

// Format is the sniffed poster encoding.
type Format int

const (
	FormatUnknown Format = iota
	FormatPNG
	FormatJPEG
)

func (f Format) String() string {
	switch f {
	case FormatPNG:
		return "png"
	case FormatJPEG:
		return "jpeg"
	default:
		return "unknown"
	}
}

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Sniff identifies the image format from leading bytes. The server's
// Content-Type is not trusted; intermediaries rewrite it.
func Sniff(data []byte) Format {
	if len(data) >= len(pngMagic) && bytes.Equal(data[:len(pngMagic)], pngMagic) {
		return FormatPNG
	}
	if len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return FormatJPEG
	}
	return FormatUnknown
}

// decodeInto decodes data and scales it into dst, which must be the fixed
// poster framebuffer. dst is only touched after the decode itself succeeded.
func decodeInto(dst *image.RGBA, data []byte) error {
	var (
		img image.Image
		err error
	)

	switch Sniff(data) {
	case FormatPNG:
		img, err = png.Decode(bytes.NewReader(data))
	case FormatJPEG:
		img, err = jpeg.Decode(bytes.NewReader(data))
	default:
		return fmt.Errorf("unrecognized image format (leading bytes %x)", headerBytes(data))
	}
	if err != nil {
		return fmt.Errorf("image decode failed: %w", err)
	}

	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return nil
}

// headerBytes returns up to the first 8 bytes for failure diagnostics.
func headerBytes(data []byte) []byte {
	if len(data) > 8 {
		return data[:8]
	}
	return data
}
