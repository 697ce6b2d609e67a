package upload

import (
	"errors"
	"path/filepath"
	"strings"
)

var ErrUnsupportedArchive = errors.New("Solo se aceptan packs en formato .zip")

// blockedExt are names we never sign even though the key would end in .zip.
var blockedExt = map[string]bool{
	".exe":  true,
	".bat":  true,
	".cmd":  true,
	".sh":   true,
	".js":   true,
	".html": true,
	".svg":  true,
}

// ValidateArchiveName accepts .zip files and bare names, which get the .zip
// suffix when the object key is built. Other archive formats are rejected.
func ValidateArchiveName(fileName string) error {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(fileName), "\\", "/"))
	ext := strings.ToLower(filepath.Ext(base))
	switch {
	case ext == ".zip":
		return nil
	case blockedExt[ext]:
		return ErrUnsupportedArchive
	case ext == ".rar", ext == ".7z", ext == ".tar", ext == ".gz":
		return ErrUnsupportedArchive
	}
	return nil
}
