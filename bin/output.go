package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/json"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services"
)

func printResult(out io.Writer, format string, result *services.BuildResult) error {
	if format == "json" {
		serialized, err := json.MarshalIndent(result)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%s\n", serialized)
		return err
	}

	return printResultText(out, result)
}

func printResultText(out io.Writer, result *services.BuildResult) error {
	b := &strings.Builder{}

	status := "succeeded"
	if !result.Success {
		status = "failed"
	}
	fmt.Fprintf(b, "%v %v: %d artifacts, %d tools, %d warnings, %d errors\n",
		result.Action, status, result.ArtifactCount, result.ToolCount,
		len(result.Warnings), len(result.Errors))

	if len(result.Tools) > 0 {
		b.WriteString("\n")
		table := tablewriter.NewWriter(b)
		table.SetHeader([]string{"Tool", "Platform", "Version", "Status",
			"Source", "Size", "Artifacts"})
		table.SetAutoFormatHeaders(false)
		table.SetAutoWrapText(false)
		for _, dep := range result.Tools {
			size := ""
			if dep.Size > 0 {
				size = humanize.Bytes(uint64(dep.Size))
			}
			table.Append([]string{dep.ToolName, dep.Platform, dep.VersionHint,
				dep.Status.String(), dep.Source, size,
				strings.Join(dep.Artifacts, ", ")})
		}
		table.Render()
	}

	for _, issue := range result.Errors {
		fmt.Fprintf(b, "ERROR %v\n", issue.String())
	}
	for _, issue := range result.Warnings {
		fmt.Fprintf(b, "WARN  %v\n", issue.String())
	}

	if result.OutputPackagePath != "" {
		fmt.Fprintf(b, "Collector: %v\n", result.OutputPackagePath)
	}
	if result.OutputArtifactsPath != "" {
		fmt.Fprintf(b, "Exports:   %v\n", result.OutputArtifactsPath)
	}

	_, err := io.WriteString(out, b.String())
	return err
}
