package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gen2brain/heic"
	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/tiff" // Register TIFF decoder
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// DefaultMaxBytes caps a single meter photo (high-resolution phone pictures included)
const DefaultMaxBytes = 50 << 20

// Source is an image picked from the camera or the gallery
type Source struct {
	Filename    string
	ContentType string
	Reader      io.Reader
}

// ToDataURI reads the source and converts it into a displayable data URI.
// HEIC/HEIF photos are re-encoded as PNG since browsers cannot render them.
func ToDataURI(ctx context.Context, src Source, maxBytes int64) (MeterImage, error) {
	if src.Reader == nil {
		return "", fmt.Errorf("%w: no file provided", ErrReadFailure)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	data, err := readAll(ctx, io.LimitReader(src.Reader, maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrReadFailure, err)
	}
	if int64(len(data)) > maxBytes {
		return "", fmt.Errorf("%w: file is larger than %d bytes", ErrReadFailure, maxBytes)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: file is empty", ErrReadFailure)
	}

	mimeType := detectMIMEType(data, src.ContentType, src.Filename)
	if isHEICFormat(data) || isHEICMimeType(mimeType) {
		pngData, err := heicToPNG(data)
		if err != nil {
			return "", err
		}
		return NewMeterImage("image/png", pngData), nil
	}

	if !strings.HasPrefix(mimeType, "image/") {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedImage, mimeType)
	}
	// AVIF has no Go decoder; the ftyp brand identifies it
	if isAVIFFormat(data) {
		return NewMeterImage("image/avif", data), nil
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnsupportedImage, err)
	}

	return NewMeterImage(mimeType, data), nil
}

// readAll reads r in chunks so a cancelled context stops a slow upload
func readAll(ctx context.Context, r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, 32<<10)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := r.Read(chunk)
		buf.Write(chunk[:n])
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// heicToPNG decodes a HEIC/HEIF photo and re-encodes it as PNG
func heicToPNG(data []byte) ([]byte, error) {
	img, err := heic.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding HEIC/HEIF image: %w", ErrUnsupportedImage, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// detectMIMEType prefers the declared content type, then the extension, then sniffing
func detectMIMEType(data []byte, contentType, filename string) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType != "" && mimeType != "application/octet-stream" {
		mimeType, _, _ = strings.Cut(mimeType, ";")
		return mimeType
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".avif":
		return "image/avif"
	}

	sniffed, _, _ := strings.Cut(http.DetectContentType(data), ";")
	return sniffed
}

// isHEICFormat checks the ftyp box brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

// isAVIFFormat checks for the avif/avis ftyp brands
func isAVIFFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	brand := string(data[8:12])
	return brand == "avif" || brand == "avis"
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
