package halcyon

import (
	"path"
	"strings"
)

// DefaultMaxNesting allows one subdirectory below a type directory, e.g.
// "walking/on-sunshine.htm".
const DefaultMaxNesting = 1

// ValidateFileName checks that name is a safe relative path with at most
// maxNesting directory components. Keys can come from user input, so this runs
// before any path is built. Segments starting with a dot are rejected: listings
// skip hidden files, and temp files use a ".halcyon-" prefix.
func ValidateFileName(name string, maxNesting int) error {
	if name == "" || strings.ContainsAny(name, "\\\x00") || strings.HasPrefix(name, "/") {
		return &InvalidKeyError{FileName: name}
	}
	segments := strings.Split(name, "/")
	if len(segments)-1 > maxNesting {
		return &InvalidKeyError{FileName: name}
	}
	for _, seg := range segments {
		if seg == "" || strings.HasPrefix(seg, ".") || !validSegment(seg) {
			return &InvalidKeyError{FileName: name}
		}
	}
	return nil
}

func validSegment(seg string) bool {
	for _, r := range seg {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

// SplitExtension returns the base name and the extension (without dot) of a
// file name. Only the last path segment is inspected.
func SplitExtension(fileName string) (string, string) {
	ext := path.Ext(fileName)
	if ext == "" || ext == "." {
		return strings.TrimSuffix(fileName, "."), ""
	}
	return strings.TrimSuffix(fileName, ext), ext[1:]
}

// hasAllowedExtension reports whether name ends in one of exts. An empty list
// accepts everything.
func hasAllowedExtension(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	_, ext := SplitExtension(name)
	for _, e := range exts {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}
