package utils

import (
	"regexp"
	"strings"
)

var (
	// Anything outside this set is replaced in archive member names.
	unsafe_filename_regex = regexp.MustCompile(`[^a-zA-Z0-9_.\-+]`)
)

func InString(hay []string, needle string) bool {
	for _, x := range hay {
		if x == needle {
			return true
		}
	}

	return false
}

// Append needle to hay unless it is already present, preserving the
// original insertion order.
func AppendUnique(hay []string, needle string) []string {
	if InString(hay, needle) {
		return hay
	}
	return append(hay, needle)
}

// Produce a name that is safe to use as a single path component on
// all platforms. Leading dots are escaped so the name can never
// traverse out of its directory.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = unsafe_filename_regex.ReplaceAllString(name, "_")
	for strings.HasPrefix(name, ".") {
		name = "_" + name[1:]
	}
	if name == "" {
		return "_"
	}
	return name
}
