package filestore

import (
	"fmt"
	"strings"
)

const maxPathLength = 1024

// ValidatePath accepts only clean, relative, slash-separated object keys:
// no leading or trailing slash, no empty, "." or ".." segments.
func ValidatePath(p string) error {
	if p == "" || len(p) > maxPathLength {
		return fmt.Errorf("%w: length", ErrInvalidPath)
	}
	if strings.ContainsAny(p, "\\\x00") {
		return fmt.Errorf("%w: forbidden character", ErrInvalidPath)
	}
	for _, segment := range strings.Split(p, "/") {
		switch segment {
		case "", ".", "..":
			return fmt.Errorf("%w: segment %q", ErrInvalidPath, segment)
		}
	}
	return nil
}
