package utils

import (
	"crypto/md5"
	"fmt"
	"strings"
)

// GravatarURL returns the avatar for an email, 200px unless size is set.
func GravatarURL(email string, size int) string {
	if size <= 0 {
		size = 200
	}
	hash := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return fmt.Sprintf("https://www.gravatar.com/avatar/%x?s=%d&d=identicon", hash, size)
}
