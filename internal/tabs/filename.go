package tabs

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsafeFilename indicates caller-supplied input that is not safe to use
// as a single path segment.
var ErrUnsafeFilename = errors.New("tabs: invalid filename")

// ValidateName rejects any caller-supplied name containing a parent-directory
// segment or a path separator. It is the sole defense against path traversal
// and must run before the name participates in any filesystem path.
func ValidateName(name string) error {
	if name == "" || name == "." {
		return fmt.Errorf("%w: empty", ErrUnsafeFilename)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrUnsafeFilename, name)
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrUnsafeFilename, name)
	}
	return nil
}

// sanitizeFilename strips characters that are unsafe or non-portable across
// filesystems, keeping the name recognizable. Control characters, path
// separators and Windows-reserved punctuation are removed; surrounding
// whitespace and trailing dots are trimmed.
func sanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
		case strings.ContainsRune(`/\?<>:*|"`, r):
		default:
			b.WriteRune(r)
		}
	}
	cleaned := strings.TrimSpace(b.String())
	cleaned = strings.TrimRight(cleaned, ".")
	return cleaned
}
