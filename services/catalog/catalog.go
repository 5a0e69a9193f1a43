// A curated list of known tools used to resolve artifacts that name
// a tool without saying where to get it.
package catalog

import (
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/Velocidex/yaml/v2"
	"github.com/go-errors/errors"

	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services"
)

type Entry struct {
	Name             string `yaml:"name"`
	Platform         string `yaml:"platform,omitempty"`
	Version          string `yaml:"version,omitempty"`
	URL              string `yaml:"url,omitempty"`
	ExpectedHash     string `yaml:"expected_hash,omitempty"`
	Filename         string `yaml:"filename,omitempty"`
	GithubProject    string `yaml:"github_project,omitempty"`
	GithubAssetRegex string `yaml:"github_asset_regex,omitempty"`
	Description      string `yaml:"description,omitempty"`
}

type Catalog struct {
	Tools []*Entry `yaml:"tools"`
}

func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	result, err := ParseCatalog(data)
	if err != nil {
		return nil, errors.Errorf("catalog %v: %v", path, err)
	}
	return result, nil
}

func ParseCatalog(data []byte) (*Catalog, error) {
	result := &Catalog{}
	err := yaml.UnmarshalStrict(data, result)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	for idx, entry := range result.Tools {
		if entry == nil || strings.TrimSpace(entry.Name) == "" {
			return nil, errors.Errorf("tool %d has no name", idx)
		}

		if entry.URL == "" && entry.GithubProject == "" {
			return nil, errors.Errorf(
				"tool %v has neither url nor github_project", entry.Name)
		}

		platform, ok := services.NormalizePlatform(entry.Platform)
		if !ok {
			return nil, errors.Errorf("tool %v: unknown platform %q",
				entry.Name, entry.Platform)
		}
		entry.Platform = platform
		entry.ExpectedHash = strings.ToLower(strings.TrimSpace(entry.ExpectedHash))
	}

	return result, nil
}

// Find the best entry for a tool. Entries for the exact platform are
// preferred over platform independent ones. Without a version the
// highest version wins.
func (self *Catalog) Lookup(name, platform, version string) (*Entry, bool) {
	if self == nil {
		return nil, false
	}

	var best *Entry
	for _, entry := range self.Tools {
		if !strings.EqualFold(entry.Name, name) {
			continue
		}

		if entry.Platform != platform && entry.Platform != services.PLATFORM_ANY {
			continue
		}

		if version != "" && NormalizeVersion(entry.Version) != NormalizeVersion(version) {
			continue
		}

		if best == nil || self.better(entry, best, platform) {
			best = entry
		}
	}

	return best, best != nil
}

func (self *Catalog) better(candidate, current *Entry, platform string) bool {
	candidate_exact := candidate.Platform == platform
	current_exact := current.Platform == platform
	if candidate_exact != current_exact {
		return candidate_exact
	}

	return compareVersions(candidate.Version, current.Version) > 0
}

// Version hints that parse as semantic versions are canonicalised so
// v1.2 and 1.2.0 are the same version. Anything else is used as is.
func NormalizeVersion(version string) string {
	version = strings.TrimSpace(version)
	if version == "" {
		return ""
	}

	parsed, err := semver.NewVersion(version)
	if err != nil {
		return version
	}
	return parsed.String()
}

// Versions that do not parse sort before those that do.
func compareVersions(a, b string) int {
	va, err_a := semver.NewVersion(a)
	vb, err_b := semver.NewVersion(b)

	switch {
	case err_a != nil && err_b != nil:
		return strings.Compare(a, b)
	case err_a != nil:
		return -1
	case err_b != nil:
		return 1
	}
	return va.Compare(vb)
}
