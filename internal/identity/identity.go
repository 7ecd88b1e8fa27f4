// Package identity maps source URLs to job ids and back.
//
// An id is the URL itself, base64 encoded with the URL-safe alphabet and
// padding kept, so no lookup table is needed to recover the URL.
package identity

import (
	"encoding/base64"
	"fmt"

	"github.com/sanderdlm/betascrubber/internal/domain"
)

var encoding = base64.URLEncoding.Strict()

// Encode returns the job id for a source URL.
func Encode(url string) string {
	return encoding.EncodeToString([]byte(url))
}

// Decode returns the source URL for a job id.
func Decode(id string) (string, error) {
	if id == "" {
		return "", domain.ErrInvalidIdentity
	}
	raw, err := encoding.DecodeString(id)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidIdentity, err)
	}
	return string(raw), nil
}

// Valid reports whether id is a well-formed job id.
func Valid(id string) bool {
	_, err := Decode(id)
	return err == nil
}
