package transformation

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	// Registers decoders with the standard 'image' package so that
	// DecodeConfig and Decode recognise these formats. imaging itself
	// pulls in bmp and tiff.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/mahirjain10/image-resizer/internal/types"
)

const DefaultJPEGQuality = 95

// ErrUnsupportedFormat is returned for formats that decode but cannot be re-encoded.
var ErrUnsupportedFormat = errors.New("unsupported format for re-encoding")

type Transformer struct {
	jpegQuality int
}

func NewTransformer(jpegQuality int) *Transformer {
	if jpegQuality < 1 || jpegQuality > 100 {
		jpegQuality = DefaultJPEGQuality
	}
	return &Transformer{jpegQuality: jpegQuality}
}

// getFormat maps the string format from image.Decode to the imaging.Format enum
func getFormat(format string) (imaging.Format, error) {
	switch format {
	case "jpeg":
		return imaging.JPEG, nil
	case "png":
		return imaging.PNG, nil
	case "gif":
		return imaging.GIF, nil
	case "bmp":
		return imaging.BMP, nil
	case "tiff":
		return imaging.TIFF, nil
	default:
		return -1, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func contentType(format imaging.Format) string {
	switch format {
	case imaging.JPEG:
		return "image/jpeg"
	case imaging.PNG:
		return "image/png"
	case imaging.GIF:
		return "image/gif"
	case imaging.BMP:
		return "image/bmp"
	case imaging.TIFF:
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}

// ProbeMetadata reads only the image header.
func (t *Transformer) ProbeMetadata(buffer []byte) (*types.ImageMetadata, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(buffer))
	if err != nil {
		return nil, fmt.Errorf("failed to read image metadata: %w", err)
	}
	return &types.ImageMetadata{
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: format,
	}, nil
}

// Resize scales the image to exactly width pixels wide, keeping the aspect
// ratio, and re-encodes it in its original format.
func (t *Transformer) Resize(buffer []byte, width int) (*types.EncodedImage, error) {
	if width <= 0 {
		return nil, fmt.Errorf("invalid target width: %d", width)
	}

	// 1. Check the format from the header before decoding any pixels
	_, formatStr, err := image.DecodeConfig(bytes.NewReader(buffer))
	if err != nil {
		return nil, fmt.Errorf("failed to read image header: %w", err)
	}
	format, err := getFormat(formatStr)
	if err != nil {
		return nil, err
	}

	// 2. Decode the image
	img, _, err := image.Decode(bytes.NewReader(buffer))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	// 3. Transform: a zero height keeps the aspect ratio
	newImage := imaging.Resize(img, width, 0, imaging.Lanczos)

	// 4. Re-encode to a new buffer
	buf := new(bytes.Buffer)
	if err = imaging.Encode(buf, newImage, format, imaging.JPEGQuality(t.jpegQuality)); err != nil {
		return nil, fmt.Errorf("error while resizing: %w", err)
	}

	bounds := newImage.Bounds()
	return &types.EncodedImage{
		Body:        buf.Bytes(),
		ContentType: contentType(format),
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
	}, nil
}
