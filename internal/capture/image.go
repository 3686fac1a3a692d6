package capture

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrReadFailure is returned when the selected file could not be read
	ErrReadFailure = errors.New("reading image")
	// ErrUnsupportedImage is returned when the payload is not a displayable image
	ErrUnsupportedImage = errors.New("unsupported image format")
)

// MeterImage is a photo of the meter encoded as a data URI
type MeterImage string

// NewMeterImage encodes raw image bytes as a data URI
func NewMeterImage(mimeType string, data []byte) MeterImage {
	var b strings.Builder
	b.WriteString("data:")
	b.WriteString(mimeType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return MeterImage(b.String())
}

// IsZero reports whether no image is set
func (m MeterImage) IsZero() bool {
	return m == ""
}

// String returns the data URI
func (m MeterImage) String() string {
	return string(m)
}

// MIMEType returns the media type declared in the data URI
func (m MeterImage) MIMEType() string {
	header, _, ok := strings.Cut(strings.TrimPrefix(string(m), "data:"), ",")
	if !ok {
		return ""
	}
	mimeType, _, _ := strings.Cut(header, ";")
	return mimeType
}

// Bytes decodes the data URI payload
func (m MeterImage) Bytes() ([]byte, error) {
	if !strings.HasPrefix(string(m), "data:") {
		return nil, fmt.Errorf("not a data URI")
	}
	header, payload, ok := strings.Cut(strings.TrimPrefix(string(m), "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("malformed data URI")
	}
	if !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("data URI is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding data URI: %w", err)
	}
	return data, nil
}

