// Finds the tools an artifact needs. Only structured metadata is
// considered: the artifact's tools block and parameters following
// the Tool_<Name>_<FIELD> naming convention. Query bodies are never
// inspected.
package extractor

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/artifacts"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services"
)

var (
	parameter_regex = regexp.MustCompile(
		`^(?i:tool)_(.+)_(?i:(url|hash|sha256|version|platform|filename))$`)

	hash_regex = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

type builder struct {
	ref *services.ToolReference

	// The raw platform before normalization.
	platform string
}

// Fill empty fields only so earlier sources take precedence.
func (self *builder) merge(field, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}

	var target *string
	switch field {
	case "url":
		target = &self.ref.SourceURL
	case "hash", "sha256":
		target = &self.ref.ExpectedHash
	case "version":
		target = &self.ref.VersionHint
	case "platform":
		target = &self.platform
	case "filename":
		target = &self.ref.Filename
	case "github_project":
		target = &self.ref.GithubProject
	case "github_asset_regex":
		target = &self.ref.GithubAssetRegex
	default:
		return
	}

	if *target == "" {
		*target = value
	}
}

func (self *builder) mergeFrom(other *builder) {
	self.merge("url", other.ref.SourceURL)
	self.merge("hash", other.ref.ExpectedHash)
	self.merge("version", other.ref.VersionHint)
	self.merge("platform", other.platform)
	self.merge("filename", other.ref.Filename)
	self.merge("github_project", other.ref.GithubProject)
	self.merge("github_asset_regex", other.ref.GithubAssetRegex)
}

func samePlatform(a, b string) bool {
	norm_a, _ := services.NormalizePlatform(a)
	norm_b, _ := services.NormalizePlatform(b)
	return norm_a == norm_b
}

// Entries in the tools block are distinct per platform and version.
type toolsKey struct {
	name, platform, version string
}

func Extract(definition *artifacts.ArtifactDefinition) (
	[]services.ToolReference, []services.Issue) {
	var order []*builder
	declared := make(map[toolsKey]*builder)
	by_name := make(map[string][]*builder)

	for _, tool := range definition.Tools {
		name := strings.TrimSpace(tool.Name)
		key := toolsKey{
			name:     name,
			platform: strings.ToLower(strings.TrimSpace(tool.Platform)),
			version:  strings.TrimSpace(tool.Version),
		}

		b, pres := declared[key]
		if !pres {
			b = &builder{ref: &services.ToolReference{
				Artifact: definition.Name,
				ToolName: name,
				Origin:   services.ORIGIN_TOOLS_BLOCK,
			}}
			declared[key] = b
			by_name[name] = append(by_name[name], b)
			order = append(order, b)
		}

		b.merge("url", tool.URL)
		b.merge("hash", tool.ExpectedHash)
		b.merge("version", tool.Version)
		b.merge("platform", tool.Platform)
		b.merge("filename", tool.Filename)
		b.merge("github_project", tool.GithubProject)
		b.merge("github_asset_regex", tool.GithubAssetRegex)
	}

	// Parameters are collected per tool name first.
	var param_order []string
	params := make(map[string]*builder)
	for _, parameter := range definition.Parameters {
		match := parameter_regex.FindStringSubmatch(parameter.Name)
		if match == nil {
			continue
		}
		name := strings.TrimSpace(match[1])
		b, pres := params[name]
		if !pres {
			b = &builder{ref: &services.ToolReference{
				Artifact: definition.Name,
				ToolName: name,
				Origin:   services.ORIGIN_PARAMETER,
			}}
			params[name] = b
			param_order = append(param_order, name)
		}
		b.merge(strings.ToLower(match[2]), parameter.Default)
	}

	// The tools block wins over parameters for every field.
	for _, name := range param_order {
		param := params[name]
		target := matchDeclared(by_name[name], param)
		if target == nil {
			order = append(order, param)
			continue
		}
		target.mergeFrom(param)
	}

	var result []services.ToolReference
	var issues []services.Issue

	for _, b := range order {
		issues = append(issues, normalize(definition, b)...)
		result = append(result, *b.ref)
	}

	return result, issues
}

// Find the tools block entry that parameters for the same tool
// describe: the one on the parameter's platform, else the only entry,
// else the one without a platform.
func matchDeclared(candidates []*builder, param *builder) *builder {
	if len(candidates) == 0 {
		return nil
	}

	if param.platform != "" {
		for _, c := range candidates {
			if c.platform != "" && samePlatform(c.platform, param.platform) {
				return c
			}
		}
	} else if len(candidates) == 1 {
		return candidates[0]
	}

	for _, c := range candidates {
		if c.platform == "" {
			return c
		}
	}
	return nil
}

func normalize(
	definition *artifacts.ArtifactDefinition, b *builder) []services.Issue {
	var issues []services.Issue
	ref := b.ref

	invalid := func(format string, args ...interface{}) {
		issues = append(issues, services.Issue{
			Kind:     services.KIND_INVALID_REFERENCE,
			Artifact: ref.Artifact,
			Tool:     ref.ToolName,
			URL:      ref.SourceURL,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	if b.platform == "" {
		ref.Platform = services.PlatformFromArtifactName(definition.Name)
	} else {
		platform, ok := services.NormalizePlatform(b.platform)
		if !ok {
			invalid("unknown platform %q, tool will be used on any platform",
				b.platform)
		}
		ref.Platform = platform
	}

	// A malformed hash is kept so verification fails rather than the
	// tool being silently treated as unverified.
	if ref.ExpectedHash != "" {
		ref.ExpectedHash = strings.ToLower(ref.ExpectedHash)
		if !hash_regex.MatchString(ref.ExpectedHash) {
			invalid("expected hash %q is not a SHA-256 hex digest",
				ref.ExpectedHash)
		}
	}

	if ref.SourceURL != "" {
		parsed, err := url.Parse(ref.SourceURL)
		if err != nil || parsed.Host == "" && parsed.Scheme != "file" ||
			!isSupportedScheme(parsed.Scheme) {
			invalid("unsupported url %q, tool will be resolved by name",
				ref.SourceURL)
			ref.SourceURL = ""
		}
	}

	if ref.GithubAssetRegex != "" {
		_, err := regexp.Compile(ref.GithubAssetRegex)
		if err != nil {
			invalid("invalid github_asset_regex: %v", err)
			ref.GithubProject = ""
			ref.GithubAssetRegex = ""
		}
	}

	return issues
}

func isSupportedScheme(scheme string) bool {
	switch strings.ToLower(scheme) {
	case "http", "https", "file":
		return true
	}
	return false
}
