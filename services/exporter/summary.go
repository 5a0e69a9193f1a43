package exporter

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services"
)

type Summary struct {
	BuildID  string
	Action   services.Action
	Platform string
	Mode     string

	// Selected artifact names.
	Artifacts []string
	Mapping   *services.ArtifactToolMapping
	Tools     []*services.ToolDependency

	Warnings []services.Issue
	Errors   []services.Issue

	PackagePath string
	PackageSize int64
}

func newTable(out io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	return table
}

// A human readable report of the build.
func WriteSummary(out io.Writer, summary *Summary) error {
	b := &strings.Builder{}

	platform := summary.Platform
	if platform == "" {
		platform = services.PLATFORM_ANY
	}
	title := "Build"
	if summary.BuildID != "" {
		title += " " + summary.BuildID
	}
	fmt.Fprintf(b, "%v (%v, %v mode, platform %v)\n\n",
		title, summary.Action, summary.Mode, platform)

	fmt.Fprintf(b, "Artifacts: %d\n", len(summary.Artifacts))
	fmt.Fprintf(b, "Tools:     %d\n", len(summary.Tools))
	fmt.Fprintf(b, "Mappings:  %d\n", mappingLen(summary.Mapping))
	fmt.Fprintf(b, "Warnings:  %d\n", len(summary.Warnings))
	fmt.Fprintf(b, "Errors:    %d\n", len(summary.Errors))

	if summary.PackagePath != "" {
		fmt.Fprintf(b, "Package:   %v (%v)\n", summary.PackagePath,
			humanize.Bytes(uint64(summary.PackageSize)))
	}

	b.WriteString("\nArtifacts by category:\n")
	table := newTable(b, []string{"Category", "Artifacts", "Tool References"})
	for _, row := range categoryBreakdown(summary) {
		table.Append(row)
	}
	table.Render()

	if len(summary.Tools) > 0 {
		b.WriteString("\nTools by status:\n")
		table = newTable(b, []string{"Status", "Count", "Size"})
		for _, row := range statusBreakdown(summary.Tools) {
			table.Append(row)
		}
		table.Render()

		b.WriteString("\nTools:\n")
		table = newTable(b, []string{"Tool", "Platform", "Version",
			"Status", "Size", "Artifacts"})
		for _, dep := range summary.Tools {
			size := ""
			if dep.Size > 0 {
				size = humanize.Bytes(uint64(dep.Size))
			}
			table.Append([]string{dep.ToolName, dep.Platform, dep.VersionHint,
				dep.Status.String(), size, strings.Join(dep.Artifacts, ", ")})
		}
		table.Render()
	}

	writeIssues(b, "Errors", summary.Errors)
	writeIssues(b, "Warnings", summary.Warnings)

	_, err := io.WriteString(out, b.String())
	return err
}

func mappingLen(mapping *services.ArtifactToolMapping) int {
	if mapping == nil {
		return 0
	}
	return mapping.Len()
}

// Categories are the first component of the artifact name.
func categoryBreakdown(summary *Summary) [][]string {
	artifacts := make(map[string]int)
	references := make(map[string]int)

	for _, name := range summary.Artifacts {
		artifacts[services.ArtifactCategory(name)]++
	}
	if summary.Mapping != nil {
		for _, entry := range summary.Mapping.Entries() {
			references[services.ArtifactCategory(entry.Artifact)]++
		}
	}

	categories := []string{}
	for k := range artifacts {
		categories = append(categories, k)
	}
	for k := range references {
		if _, pres := artifacts[k]; !pres {
			categories = append(categories, k)
		}
	}
	sort.Strings(categories)

	result := [][]string{}
	for _, k := range categories {
		result = append(result, []string{k,
			fmt.Sprintf("%d", artifacts[k]),
			fmt.Sprintf("%d", references[k])})
	}
	return result
}

func statusBreakdown(tools []*services.ToolDependency) [][]string {
	count := make(map[services.ToolStatus]int)
	size := make(map[services.ToolStatus]int64)
	for _, dep := range tools {
		count[dep.Status]++
		size[dep.Status] += dep.Size
	}

	statuses := []services.ToolStatus{}
	for k := range count {
		statuses = append(statuses, k)
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i] < statuses[j]
	})

	result := [][]string{}
	for _, status := range statuses {
		result = append(result, []string{status.String(),
			fmt.Sprintf("%d", count[status]),
			humanize.Bytes(uint64(size[status]))})
	}
	return result
}

func writeIssues(b *strings.Builder, title string, issues []services.Issue) {
	if len(issues) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%v:\n", title)
	for _, issue := range issues {
		fmt.Fprintf(b, "  %v\n", issue.String())
	}
}
