// Serializes the artifact to tool mapping and the build manifest.
// Exporting never modifies the build state it is given.
package exporter

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"

	"github.com/Velocidex/ordereddict"

	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/json"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/utils/tempfile"
)

type MappingRow struct {
	Artifact    string
	Tool        string
	Platform    string
	VersionHint string
	Status      services.ToolStatus
}

// One row per mapping edge, in mapping order. The status is taken from
// the dependency the edge points to.
func MappingRows(
	mapping *services.ArtifactToolMapping,
	tools []*services.ToolDependency) []MappingRow {

	status := make(map[services.DependencyKey]services.ToolStatus)
	for _, dep := range tools {
		status[dep.Key()] = dep.Status
	}

	result := []MappingRow{}
	if mapping == nil {
		return result
	}

	for _, entry := range mapping.Entries() {
		result = append(result, MappingRow{
			Artifact:    entry.Artifact,
			Tool:        entry.Tool,
			Platform:    entry.Platform,
			VersionHint: entry.VersionHint,
			Status:      status[entry.Key()],
		})
	}
	return result
}

func WriteMappingJSON(out io.Writer, rows []MappingRow) error {
	result := []*ordereddict.Dict{}
	for _, row := range rows {
		item := ordereddict.NewDict().
			Set("artifact", row.Artifact).
			Set("tool", row.Tool).
			Set("platform", row.Platform)
		if row.VersionHint != "" {
			item.Set("version", row.VersionHint)
		}
		item.Set("status", row.Status.String())
		result = append(result, item)
	}

	serialized, err := json.MarshalIndent(result)
	if err != nil {
		return err
	}
	_, err = out.Write(serialized)
	return err
}

func WriteMappingCSV(out io.Writer, rows []MappingRow) error {
	writer := csv.NewWriter(out)
	err := writer.Write([]string{"artifact", "tool", "platform", "status"})
	if err != nil {
		return err
	}

	for _, row := range rows {
		err := writer.Write([]string{
			row.Artifact, row.Tool, row.Platform, row.Status.String()})
		if err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func WriteManifestJSON(out io.Writer, manifest *services.CollectionManifest) error {
	serialized, err := json.MarshalIndent(manifest)
	if err != nil {
		return err
	}
	_, err = out.Write(serialized)
	return err
}

// Write a file in dir through a temp file so readers never see a
// partial export.
func WriteFile(dir, name string, cb func(out io.Writer) error) (string, error) {
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		return "", err
	}

	fd, err := tempfile.TempFileIn(dir, name+".*.tmp")
	if err != nil {
		return "", err
	}

	err = cb(fd)
	close_err := fd.Close()
	if err == nil {
		err = close_err
	}

	if err != nil {
		_ = tempfile.RemoveTempFile(fd.Name())
		return "", err
	}

	path := filepath.Join(dir, name)
	err = os.Rename(fd.Name(), path)
	if err != nil {
		_ = tempfile.RemoveTempFile(fd.Name())
		return "", err
	}
	tempfile.Claim(fd.Name())

	return path, nil
}
