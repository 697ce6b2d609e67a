// Package shortener generates short random codes for purchases and links.
package shortener

import (
	"crypto/rand"
	"fmt"
)

// Base62 alphabet: 0-9, a-z, A-Z.
const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// codeAlphabet drops characters that are easy to misread (0/O, 1/I/L).
const codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// GenerateSecureSlug creates a cryptographically secure random Base62 slug.
func GenerateSecureSlug(length int) (string, error) {
	return generate(alphabet, length)
}

// PurchaseCode returns a code such as "ARS-7KQ2M9XD" that buyers quote to
// support.
func PurchaseCode() (string, error) {
	s, err := generate(codeAlphabet, 8)
	if err != nil {
		return "", err
	}
	return "ARS-" + s, nil
}

func generate(chars string, length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid slug length: %d", length)
	}

	// Rejection sampling to avoid modulo bias.
	maxRandomByte := 256 - 256%len(chars)

	slug := make([]byte, length)
	buf := make([]byte, length*2)
	written := 0

	for written < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read secure random bytes: %w", err)
		}

		for _, b := range buf {
			if int(b) >= maxRandomByte {
				continue
			}
			slug[written] = chars[int(b)%len(chars)]
			written++
			if written == length {
				break
			}
		}
	}

	return string(slug), nil
}
