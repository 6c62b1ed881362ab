// Package photo turns an uploaded applicant photo into the image data URL
// stored on the application.
package photo

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MaxBytes is the largest accepted photo.
const MaxBytes = 2 << 20

var (
	// ErrTooLarge is returned for photos over MaxBytes.
	ErrTooLarge = errors.New("Photo size should be less than 2MB")
	// ErrNotImage is returned when the content is not a recognised image.
	ErrNotImage = errors.New("Please upload an image file")
	// ErrMalformed is returned by CheckDataURL for values that are not base64 data URLs.
	ErrMalformed = errors.New("photo is not a base64 data URL")
)

// Intake reads at most MaxBytes from r and returns it as a data URL.
func Intake(r io.Reader) (string, error) {
	buf, err := io.ReadAll(io.LimitReader(r, MaxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read photo: %w", err)
	}
	if len(buf) > MaxBytes {
		return "", ErrTooLarge
	}
	mime := http.DetectContentType(buf)
	if !strings.HasPrefix(mime, "image/") {
		return "", ErrNotImage
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(buf), nil
}

// CheckDataURL verifies that s is an image data URL within MaxBytes.
func CheckDataURL(s string) error {
	header, payload, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok || !strings.HasPrefix(s, "data:") {
		return ErrMalformed
	}
	mime, enc, _ := strings.Cut(header, ";")
	if enc != "base64" {
		return ErrMalformed
	}
	if !strings.HasPrefix(mime, "image/") {
		return ErrNotImage
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxBytes+2 {
		return ErrTooLarge
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return ErrMalformed
	}
	if len(raw) > MaxBytes {
		return ErrTooLarge
	}
	return nil
}
