package workflow

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const uploadTokenBytes = 32

// NewUploadToken returns 32 random bytes hex encoded.
func NewUploadToken() (string, error) {
	b := make([]byte, uploadTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate upload token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
