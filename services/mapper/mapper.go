// Deduplicates tool references into tool dependencies and builds the
// artifact to tool mapping.
package mapper

import (
	"context"
	"fmt"
	"strings"

	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services/catalog"
)

// The references extracted from one artifact.
type ArtifactTools struct {
	Artifact   string
	References []services.ToolReference
}

type Options struct {
	// Canonical platform name. Empty or "any" keeps all platforms.
	TargetPlatform string

	// Resolve name only references from the catalog. When false
	// they are left Pending.
	Resolve bool
	Catalog *catalog.Catalog
}

type MapResult struct {
	// Every unique dependency in order of first reference.
	Dependencies []*services.ToolDependency

	// The dependencies that still need to be fetched.
	Active []*services.ToolDependency

	Mapping  *services.ArtifactToolMapping
	Warnings []services.Issue
}

func Map(ctx context.Context,
	pairs []ArtifactTools, opts Options) (*MapResult, error) {
	result := &MapResult{Mapping: services.NewArtifactToolMapping()}
	index := make(map[services.DependencyKey]*services.ToolDependency)

	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for _, ref := range pair.References {
			key := services.DependencyKey{
				ToolName:    ref.ToolName,
				Platform:    ref.Platform,
				VersionHint: catalog.NormalizeVersion(ref.VersionHint),
			}

			result.Mapping.Add(services.MappingEntry{
				Artifact:    pair.Artifact,
				Tool:        key.ToolName,
				Platform:    key.Platform,
				VersionHint: key.VersionHint,
			})

			dep, pres := index[key]
			if !pres {
				dep = newDependency(key, ref)
				index[key] = dep
				result.Dependencies = append(result.Dependencies, dep)
				continue
			}

			result.Warnings = append(result.Warnings, merge(dep, ref)...)
			dep.AddArtifact(pair.Artifact)
		}
	}

	for _, dep := range result.Dependencies {
		if !services.PlatformMatches(opts.TargetPlatform, dep.Platform) {
			_ = dep.Transition(services.StatusSkipped)
			result.Warnings = append(result.Warnings, services.Issue{
				Kind: services.KIND_PLATFORM_FILTERED,
				Tool: dep.ToolName,
				Message: fmt.Sprintf(
					"%v is for %v, building for %v (used by %v)",
					dep.Key(), dep.Platform, opts.TargetPlatform,
					strings.Join(dep.Artifacts, ", ")),
			})
			continue
		}

		if opts.Resolve && !hasSource(dep) {
			if !resolve(dep, opts) {
				_ = dep.Transition(services.StatusSkipped)
				result.Warnings = append(result.Warnings,
					services.UnresolvedToolReference{
						Artifact:    strings.Join(dep.Artifacts, ", "),
						ToolName:    dep.ToolName,
						Platform:    dep.Platform,
						VersionHint: dep.VersionHint,
					}.Issue())
				continue
			}
		}

		result.Active = append(result.Active, dep)
	}

	return result, nil
}

func newDependency(
	key services.DependencyKey,
	ref services.ToolReference) *services.ToolDependency {
	dep := &services.ToolDependency{
		ToolName:         key.ToolName,
		Platform:         key.Platform,
		VersionHint:      key.VersionHint,
		ResolvedURL:      ref.SourceURL,
		ExpectedHash:     ref.ExpectedHash,
		Filename:         ref.Filename,
		GithubProject:    ref.GithubProject,
		GithubAssetRegex: ref.GithubAssetRegex,
		Status:           services.StatusPending,
		Artifacts:        []string{ref.Artifact},
	}
	if hasSource(dep) {
		dep.Source = services.SOURCE_DECLARED
	}
	return dep
}

// First seen wins. Empty fields are filled from later references
// that agree on the url. Differing non-empty values are conflicts.
func merge(dep *services.ToolDependency,
	ref services.ToolReference) []services.Issue {
	var issues []services.Issue

	check := func(field string, current *string, value string) {
		if value == "" {
			return
		}
		if *current == "" {
			*current = value
			return
		}
		if *current != value {
			issues = append(issues, services.ConflictWarning{
				ToolName:       dep.ToolName,
				Field:          field,
				FirstArtifact:  dep.Artifacts[0],
				FirstValue:     *current,
				SecondArtifact: ref.Artifact,
				SecondValue:    value,
			}.Issue())
		}
	}

	had_source := hasSource(dep)
	url_conflict := dep.ResolvedURL != "" && ref.SourceURL != "" &&
		dep.ResolvedURL != ref.SourceURL
	check("url", &dep.ResolvedURL, ref.SourceURL)

	// The losing reference describes another download. None of its
	// fields belong to the kept url.
	if url_conflict {
		if dep.ExpectedHash != "" {
			check("expected_hash", &dep.ExpectedHash, ref.ExpectedHash)
		}
		return issues
	}

	check("expected_hash", &dep.ExpectedHash, ref.ExpectedHash)

	if dep.Filename == "" {
		dep.Filename = ref.Filename
	}
	if dep.GithubProject == "" && dep.ResolvedURL == "" {
		dep.GithubProject = ref.GithubProject
		dep.GithubAssetRegex = ref.GithubAssetRegex
	}
	if !had_source && hasSource(dep) {
		dep.Source = services.SOURCE_DECLARED
	}

	return issues
}

func hasSource(dep *services.ToolDependency) bool {
	return dep.ResolvedURL != "" || dep.GithubProject != ""
}

// Fill in the download location from the catalog. Platform
// independent references are looked up for the target platform
// first.
func resolve(dep *services.ToolDependency, opts Options) bool {
	platforms := []string{dep.Platform}
	if dep.Platform == services.PLATFORM_ANY &&
		opts.TargetPlatform != "" &&
		opts.TargetPlatform != services.PLATFORM_ANY {
		platforms = []string{opts.TargetPlatform, services.PLATFORM_ANY}
	}

	for _, platform := range platforms {
		entry, pres := opts.Catalog.Lookup(dep.ToolName, platform, dep.VersionHint)
		if !pres {
			continue
		}

		dep.ResolvedURL = entry.URL
		dep.GithubProject = entry.GithubProject
		dep.GithubAssetRegex = entry.GithubAssetRegex
		if dep.ExpectedHash == "" {
			dep.ExpectedHash = entry.ExpectedHash
		}
		if dep.Filename == "" {
			dep.Filename = entry.Filename
		}
		dep.Source = services.SOURCE_CATALOG
		return true
	}
	return false
}
