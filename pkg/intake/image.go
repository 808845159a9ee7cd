package intake

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"github.com/nfnt/resize"
)

const jpegQuality = 85

// downscaleImage shrinks jpeg and png content wider than maxWidth, keeping
// the aspect ratio and format. Other content is passed through unchanged.
func downscaleImage(name string, r io.Reader, maxWidth int) (io.Reader, error) {
	var format string
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		format = "jpeg"
	case ".png":
		format = "png"
	default:
		return r, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width <= maxWidth {
		// Not decodable as an image, or already small enough
		return bytes.NewReader(data), nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return bytes.NewReader(data), nil
	}
	resized := resize.Resize(uint(maxWidth), 0, img, resize.Lanczos3)

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, resized, &jpeg.Options{Quality: jpegQuality})
	case "png":
		err = png.Encode(&buf, resized)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}
	return &buf, nil
}
