package util

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var unsafeKey = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

// SafeKey turns a free-form key (meeting names like "SA2#130") into a single
// path segment.
func SafeKey(key string) string {
	k := unsafeKey.ReplaceAllString(strings.TrimSpace(key), "_")
	k = strings.Trim(k, "._")
	if k == "" {
		return "_"
	}
	return k
}
