// Package pathutil normalizes caller-supplied paths and validates ref
// names against the rules a bare git-style object store imposes.
package pathutil

import (
	"strings"

	"github.com/mhalle/vost/pkg/vosterr"
)

// Normalize turns a caller path into its canonical internal form: slash
// separated, no leading/trailing/doubled slashes, "." segments dropped,
// ".." segments rejected. The root is represented by the empty string.
func Normalize(p string) (string, error) {
	raw := p
	hasNonSlash := strings.ContainsFunc(p, func(r rune) bool { return r != '/' })

	parts := strings.Split(p, "/")
	segs := make([]string, 0, len(parts))
	for _, seg := range parts {
		switch seg {
		case "":
			continue
		case ".":
			continue
		case "..":
			return "", vosterr.WithPath(vosterr.InvalidPath, raw, nil)
		default:
			segs = append(segs, seg)
		}
	}

	if len(segs) == 0 {
		if hasNonSlash {
			return "", vosterr.WithPath(vosterr.InvalidPath, raw, nil)
		}
		return "", nil
	}
	return strings.Join(segs, "/"), nil
}

// IsRoot reports whether a normalized path denotes the repository root.
func IsRoot(normalized string) bool { return normalized == "" }

// Segments splits a normalized path into its components. The root yields
// an empty slice.
func Segments(normalized string) []string {
	if normalized == "" {
		return nil
	}
	return strings.Split(normalized, "/")
}

// Join joins a normalized parent and a single child segment.
func Join(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "/" + child
}

const refInvalidChars = ": \t\n\r\\^~?*["

// ValidateRefName enforces the rules git itself uses for ref names,
// trimmed to the subset this spec cares about.
func ValidateRefName(name string) error {
	if name == "" {
		return vosterr.WithPath(vosterr.InvalidRefName, name, nil)
	}
	if strings.ContainsAny(name, refInvalidChars) {
		return vosterr.WithPath(vosterr.InvalidRefName, name, nil)
	}
	if strings.Contains(name, "..") {
		return vosterr.WithPath(vosterr.InvalidRefName, name, nil)
	}
	if strings.Contains(name, "@{") {
		return vosterr.WithPath(vosterr.InvalidRefName, name, nil)
	}
	if strings.HasSuffix(name, ".") {
		return vosterr.WithPath(vosterr.InvalidRefName, name, nil)
	}
	if strings.HasSuffix(name, ".lock") {
		return vosterr.WithPath(vosterr.InvalidRefName, name, nil)
	}
	return nil
}

// ValidateHash requires exactly 40 lowercase hexadecimal characters.
func ValidateHash(h string) error {
	if len(h) != 40 {
		return vosterr.WithPath(vosterr.InvalidHash, h, nil)
	}
	for _, c := range h {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return vosterr.WithPath(vosterr.InvalidHash, h, nil)
		}
	}
	return nil
}
