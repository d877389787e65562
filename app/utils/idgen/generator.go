package idgen

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	PostPrefix     = "post"
	TempPostPrefix = "tmp"
	SessionPrefix  = "fs"
)

// GenerateSecureID generates a cryptographically secure ID with the given prefix and length
func GenerateSecureID(prefix string, length int) (string, error) {
	// base64 needs about 4/3 of a byte per character; +2 covers rounding
	byteLength := (length * 3 / 4) + 2
	bytes := make([]byte, byteLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encoded := strings.TrimRight(base64.URLEncoding.EncodeToString(bytes), "=")
	if len(encoded) > length {
		encoded = encoded[:length]
	}

	return fmt.Sprintf("%s_%s", prefix, encoded), nil
}

func GeneratePostID() (string, error) {
	return GenerateSecureID(PostPrefix, 16)
}

// GenerateTempPostID names the placeholder shown while a new post is being saved.
func GenerateTempPostID() (string, error) {
	return GenerateSecureID(TempPostPrefix, 12)
}

func GenerateSessionID() (string, error) {
	return GenerateSecureID(SessionPrefix, 16)
}

// ValidateIDFormat validates that an ID has the expected format (prefix_alphanumeric)
func ValidateIDFormat(id, expectedPrefix string) bool {
	if !strings.HasPrefix(id, expectedPrefix+"_") {
		return false
	}

	suffix := id[len(expectedPrefix)+1:]
	if len(suffix) == 0 {
		return false
	}

	// base64 URL-safe: A-Z, a-z, 0-9, -, _
	for _, char := range suffix {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '-' || char == '_') {
			return false
		}
	}

	return true
}

func IsTempPostID(id string) bool {
	return ValidateIDFormat(id, TempPostPrefix)
}
