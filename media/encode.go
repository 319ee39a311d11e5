// Package media turns a picked image file into the inline data URI stored
// in a message's imageUrl.
package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
)

// SoftLimit is the encoded size, in characters, above which a payload is
// likely to be rejected by the backend's document limit. It only triggers
// a warning.
const SoftLimit = 800000

// FallbackMIME labels content that does not sniff as an image.
const FallbackMIME = "image/jpeg"

// ErrUnsupportedURI is returned for content-provider references that have
// no file behind them.
var ErrUnsupportedURI = errors.New("unsupported image reference, pick a file path")

// EncodeFile reads the image at path and returns it as a base64 data URI.
// A file:// prefix is accepted.
func EncodeFile(path string, logger zerolog.Logger) (string, error) {
	if strings.HasPrefix(path, "content://") {
		return "", ErrUnsupportedURI
	}
	path = strings.TrimPrefix(path, "file://")

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	uri := Encode(data)
	if size := len(uri) - strings.IndexByte(uri, ',') - 1; size > SoftLimit {
		logger.Warn().
			Str("path", path).
			Int("encoded_size", size).
			Int("soft_limit", SoftLimit).
			Msg("image is large and may be rejected by the backend")
	}
	return uri, nil
}

// Encode wraps raw image bytes in a data URI.
func Encode(data []byte) string {
	return "data:" + DetectMIME(data) + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DetectMIME sniffs the image type of data.
func DetectMIME(data []byte) string {
	mtype := mimetype.Detect(data)
	for m := mtype; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "image/") {
			return m.String()
		}
	}
	return FallbackMIME
}

// EncodedSize returns the size in bytes of the image inside a data URI,
// or 0 if uri is not a base64 data URI.
func EncodedSize(uri string) int {
	if !strings.HasPrefix(uri, "data:") {
		return 0
	}
	i := strings.Index(uri, ";base64,")
	if i < 0 {
		return 0
	}
	payload := uri[i+len(";base64,"):]
	return len(payload)/4*3 - (len(payload) - len(strings.TrimRight(payload, "=")))
}
