package services

import "strings"

const (
	PLATFORM_WINDOWS = "windows"
	PLATFORM_LINUX   = "linux"
	PLATFORM_DARWIN  = "darwin"
	PLATFORM_ANY     = "any"
)

var (
	platform_aliases = map[string]string{
		"":        PLATFORM_ANY,
		"any":     PLATFORM_ANY,
		"all":     PLATFORM_ANY,
		"generic": PLATFORM_ANY,
		"windows": PLATFORM_WINDOWS,
		"win":     PLATFORM_WINDOWS,
		"win32":   PLATFORM_WINDOWS,
		"win64":   PLATFORM_WINDOWS,
		"linux":   PLATFORM_LINUX,
		"darwin":  PLATFORM_DARWIN,
		"macos":   PLATFORM_DARWIN,
		"mac":     PLATFORM_DARWIN,
		"osx":     PLATFORM_DARWIN,
	}

	// Artifact namespace roots that imply a platform.
	namespace_platforms = map[string]string{
		"windows": PLATFORM_WINDOWS,
		"linux":   PLATFORM_LINUX,
		"macos":   PLATFORM_DARWIN,
		"darwin":  PLATFORM_DARWIN,
	}
)

// Returns the canonical platform name and whether the input was
// recognised.
func NormalizePlatform(platform string) (string, bool) {
	result, pres := platform_aliases[strings.ToLower(strings.TrimSpace(platform))]
	if !pres {
		return PLATFORM_ANY, false
	}
	return result, true
}

// Windows.Sysinternals.Autoruns -> windows
func PlatformFromArtifactName(name string) string {
	root := strings.SplitN(name, ".", 2)[0]
	result, pres := namespace_platforms[strings.ToLower(root)]
	if !pres {
		return PLATFORM_ANY
	}
	return result
}

// The first component of the dotted artifact name.
func ArtifactCategory(name string) string {
	return strings.SplitN(name, ".", 2)[0]
}

// Does a reference for platform apply to a build targeting target?
func PlatformMatches(target, platform string) bool {
	return target == "" || target == PLATFORM_ANY ||
		platform == PLATFORM_ANY || platform == target
}
