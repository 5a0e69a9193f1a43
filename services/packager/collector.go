package packager

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/Velocidex/yaml/v2"

	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/artifacts"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/constants"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services"
)

// The generated collector configuration stored as collector.yaml.
type CollectorConfig struct {
	BuildID   string              `yaml:"build_id"`
	CreatedAt string              `yaml:"created_at"`
	Platform  string              `yaml:"platform"`
	Mode      string              `yaml:"mode"`
	Artifacts []CollectorArtifact `yaml:"artifacts"`
	Tools     []CollectorTool     `yaml:"tools,omitempty"`
}

type CollectorParameter struct {
	Name    string `yaml:"name"`
	Default string `yaml:"default"`
}

type CollectorArtifact struct {
	Name       string               `yaml:"name"`
	Definition string               `yaml:"definition"`
	Parameters []CollectorParameter `yaml:"parameters,omitempty"`
	Tools      []string             `yaml:"tools,omitempty"`
}

type CollectorTool struct {
	Name     string `yaml:"name"`
	Platform string `yaml:"platform"`
	Version  string `yaml:"version,omitempty"`
	URL      string `yaml:"url,omitempty"`
	Hash     string `yaml:"hash,omitempty"`
	Filename string `yaml:"filename,omitempty"`
	Status   string `yaml:"status"`
}

func artifactPath(name string) string {
	return constants.ARTIFACTS_DIR + "/" + name + ".yaml"
}

func buildCollectorConfig(req *Request,
	plan []*toolPlan, listed map[string][]string) *CollectorConfig {
	result := &CollectorConfig{
		BuildID:   req.BuildID,
		CreatedAt: req.CreatedAt.UTC().Format(time.RFC3339),
		Platform:  req.Platform,
		Mode:      req.Mode,
	}

	for _, definition := range req.Artifacts {
		artifact := CollectorArtifact{
			Name:       definition.Name,
			Definition: artifactPath(definition.Name),
			Tools:      listed[definition.Name],
		}
		for _, p := range definition.Parameters {
			artifact.Parameters = append(artifact.Parameters,
				CollectorParameter{Name: p.Name, Default: p.Default})
		}
		result.Artifacts = append(result.Artifacts, artifact)
	}

	for _, item := range plan {
		if !item.listed {
			continue
		}
		result.Tools = append(result.Tools, CollectorTool{
			Name:     item.dep.ToolName,
			Platform: item.dep.Platform,
			Version:  item.dep.VersionHint,
			URL:      item.dep.ResolvedURL,
			Hash:     item.dep.Hash,
			Filename: item.archive_path,
			Status:   item.dep.Status.String(),
		})
	}

	return result
}

func encodeCollectorConfig(config *CollectorConfig) ([]byte, error) {
	serialized, err := yaml.Marshal(config)
	if err != nil {
		return nil, err
	}
	header := fmt.Sprintf("# Collector configuration for build %v\n", config.BuildID)
	return append([]byte(header), serialized...), nil
}

// The raw definition as it was read, or a re-serialization when the
// raw text is not available.
func definitionText(definition *artifacts.ArtifactDefinition) ([]byte, error) {
	if definition.Raw != "" {
		return []byte(definition.Raw), nil
	}
	return yaml.Marshal(definition)
}

// tools/inventory.csv lists every binary in the archive.
func buildInventoryCSV(plan []*toolPlan) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)

	err := writer.Write([]string{
		"ToolName", "Platform", "Filename", "ExpectedHash", "Size", "Status"})
	if err != nil {
		return nil, err
	}

	for _, item := range plan {
		if item.archive_path == "" {
			continue
		}
		err := writer.Write([]string{
			item.dep.ToolName,
			item.dep.Platform,
			item.archive_path,
			item.dep.ExpectedHash,
			fmt.Sprintf("%d", item.dep.Size),
			item.dep.Status.String(),
		})
		if err != nil {
			return nil, err
		}
	}

	writer.Flush()
	return buf.Bytes(), writer.Error()
}

func buildReadme(req *Request, plan []*toolPlan) []byte {
	b := &strings.Builder{}
	fmt.Fprintf(b, "Offline collector %v\n", req.BuildID)
	fmt.Fprintf(b, "Created %v for platform %v (%v mode)\n\n",
		req.CreatedAt.UTC().Format(time.RFC3339), req.Platform, req.Mode)

	b.WriteString("Artifacts:\n")
	for _, definition := range req.Artifacts {
		fmt.Fprintf(b, "  %v\n", definition.Name)
	}

	b.WriteString("\nTools:\n")
	count := 0
	for _, item := range plan {
		if !item.listed {
			continue
		}
		count++
		location := item.archive_path
		if location == "" {
			location = "(not included)"
		}
		fmt.Fprintf(b, "  %v [%v] %v %v\n", item.dep.ToolName,
			item.dep.Platform, item.dep.Status, location)
	}
	if count == 0 {
		b.WriteString("  none\n")
	}

	fmt.Fprintf(b, `
Usage:
  Copy this archive to the target system and extract it. %v
  describes the artifacts to collect and the tools they use. Tool
  binaries are stored under %v/<platform>/ and can be checked against
  %v with "sha256sum -c %v".
`, constants.COLLECTOR_CONFIG, constants.TOOLS_DIR,
		constants.HASHES_FILE, constants.HASHES_FILE)

	if req.Password != "" {
		b.WriteString(`
The collection is stored in the encrypted member data.zip. The
password is not included in this archive.
`)
	}

	return []byte(b.String())
}

func buildHashes(files []services.ManifestFile) []byte {
	b := &strings.Builder{}
	for _, f := range files {
		fmt.Fprintf(b, "%s  %s\n", f.Sha256, f.Path)
	}
	return []byte(b.String())
}
