package os

import (
	"os"
	"path/filepath"
	"strings"
)

// Get environment variable. If missing/empty, return fallback value.
func GetEnvOr(name, fallback string) string {
	val := os.Getenv(name)
	if val == "" {
		return fallback
	}
	return val
}

// Or returns value if it is not empty, or the environment variable name otherwise.
func Or(value string, name string) string {
	if value != "" {
		return value
	}
	return os.Getenv(name)
}

// ExpandHome replaces leading "~" of the path with the home directory.
//
// If home directory is unknown, the path is returned as it is.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
