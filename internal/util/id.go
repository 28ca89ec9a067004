package util

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// ObjectKey builds a collision-resistant blob key from an uploaded filename.
// The original filename is kept for operator readability; path separators are
// stripped so a crafted filename cannot escape its namespace.
func ObjectKey(filename string) string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	name := strings.TrimSpace(filename)
	name = strings.ReplaceAll(name, "/", "-")
	name = strings.ReplaceAll(name, "\\", "-")
	if name == "" {
		name = "upload"
	}
	return hex.EncodeToString(bytes) + "-" + name
}
