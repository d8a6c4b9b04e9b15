package naming

import (
	"fmt"
	"path"
	"strings"
)

// Package naming owns the routing rules for bucket objects: which keys are
// eligible originals, and where each derivative goes. Derived paths never
// carry the original marker, so derivatives always fail IsOriginal and can
// never re-trigger processing.

// IsImage reports whether contentType denotes an image of any format.
func IsImage(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}

// IsOriginal reports whether the object's base name, without its extension,
// ends with the original marker.
func IsOriginal(name, marker string) bool {
	if marker == "" {
		return false
	}
	ext := path.Ext(name)
	base := strings.TrimSuffix(path.Base(name), ext)
	return strings.HasSuffix(base, marker)
}

// DerivePath returns the destination key for the named size: the marker
// suffix is replaced with "_<sizeName>", the extension and directory are
// kept. The result is deterministic for a given (name, marker, sizeName).
func DerivePath(name, marker, sizeName string) (string, error) {
	if !IsOriginal(name, marker) {
		return "", fmt.Errorf("object %q is not an original (marker %q)", name, marker)
	}

	ext := path.Ext(name)
	base := strings.TrimSuffix(path.Base(name), ext)
	derived := strings.TrimSuffix(base, marker) + "_" + sizeName + ext

	dir := path.Dir(name)
	if dir == "." {
		return derived, nil
	}

	return path.Join(dir, derived), nil
}
