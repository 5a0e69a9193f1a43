// Assembles the offline collector archive from the selected artifacts
// and the final status of every tool dependency.
//
// The archive is written to a temp file next to its final location
// and renamed into place only once it is complete.
package packager

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/artifacts"
	config_proto "github.com/Ununp3ntium115/Velociraptor-scripts-sub002/config/proto"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/constants"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/json"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/logging"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/utils"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/utils/tempfile"
)

type Request struct {
	BuildID   string
	CreatedAt time.Time
	Platform  string

	// services.MODE_STRICT or services.MODE_PERMISSIVE
	Mode string

	// Directory receiving Collector_<BuildID>.zip
	OutputDirectory string
	Password        string

	// Selected artifacts in order.
	Artifacts []*artifacts.ArtifactDefinition

	// Final status of every dependency.
	Tools   []*services.ToolDependency
	Mapping *services.ArtifactToolMapping
}

type PackageReport struct {
	Path     string
	Warnings []services.Issue

	// Number of binaries stored in the archive.
	Binaries int
}

// What happens to one dependency.
type toolPlan struct {
	dep *services.ToolDependency

	// Appears in the collector configuration and the manifest.
	listed bool

	// Where the binary is stored, empty when there is no binary.
	archive_path string
}

func PackagePath(output_directory, build_id string) string {
	return filepath.Join(output_directory, "Collector_"+build_id+".zip")
}

func Package(
	ctx context.Context,
	config_obj *config_proto.Config,
	req *Request) (*services.CollectionManifest, *PackageReport, error) {

	logger := logging.GetLogger(config_obj, &logging.PackagerComponent)

	final_path := PackagePath(req.OutputDirectory, req.BuildID)
	report := &PackageReport{}

	plan := planTools(req, report)
	listed := listArtifactTools(req, plan)

	manifest := &services.CollectionManifest{
		BuildID:    req.BuildID,
		CreatedAt:  req.CreatedAt.UTC(),
		Platform:   req.Platform,
		Mode:       req.Mode,
		OutputPath: final_path,
	}
	for _, definition := range req.Artifacts {
		manifest.SelectedArtifacts = append(
			manifest.SelectedArtifacts, definition.Name)
	}
	for _, item := range plan {
		if !item.listed {
			continue
		}
		manifest.IncludedTools = append(manifest.IncludedTools,
			services.ManifestTool{
				ToolName:     item.dep.ToolName,
				Platform:     item.dep.Platform,
				VersionHint:  item.dep.VersionHint,
				URL:          item.dep.ResolvedURL,
				Filename:     item.dep.ArchiveFilename(),
				ArchivePath:  item.archive_path,
				ExpectedHash: item.dep.ExpectedHash,
				Hash:         item.dep.Hash,
				Size:         item.dep.Size,
				Status:       item.dep.Status,
				Artifacts:    append([]string{}, item.dep.Artifacts...),
			})
		if item.archive_path != "" {
			report.Binaries++
		}
	}

	err := os.MkdirAll(req.OutputDirectory, 0700)
	if err != nil {
		return nil, report, &PackagingError{Path: final_path, Err: err}
	}

	fd, err := tempfile.TempFileIn(req.OutputDirectory, "Collector_*.zip.tmp")
	if err != nil {
		return nil, report, &PackagingError{Path: final_path, Err: err}
	}
	tmp_path := fd.Name()

	container := NewContainer(fd, req.Password)
	err = writeMembers(ctx, container, req, plan, listed, manifest)
	if err != nil {
		_ = fd.Close()
		_ = tempfile.RemoveTempFile(tmp_path)
		logger.Error("Packaging <red>%v</> failed: %v", final_path, err)
		return nil, report, &PackagingError{Path: final_path, Err: err}
	}

	err = container.Close()
	if err != nil {
		_ = tempfile.RemoveTempFile(tmp_path)
		return nil, report, &PackagingError{Path: final_path, Err: err}
	}

	err = os.Rename(tmp_path, final_path)
	if err != nil {
		_ = tempfile.RemoveTempFile(tmp_path)
		return nil, report, &PackagingError{Path: final_path, Err: err}
	}
	tempfile.Claim(tmp_path)

	report.Path = final_path
	logger.Info("Wrote collector <green>%v</> with %v artifacts and %v tools",
		final_path, len(req.Artifacts), report.Binaries)

	return manifest, report, nil
}

// Decide for every dependency if it is listed and if its binary is
// stored, according to the build mode.
func planTools(req *Request, report *PackageReport) []*toolPlan {
	result := []*toolPlan{}
	used_paths := make(map[string]bool)
	permissive := req.Mode == services.MODE_PERMISSIVE

	warn := func(dep *services.ToolDependency, message string) {
		report.Warnings = append(report.Warnings, services.Issue{
			Kind:     issueKind(dep.Status),
			Artifact: strings.Join(dep.Artifacts, ", "),
			Tool:     dep.Key().String(),
			URL:      dep.ResolvedURL,
			Message:  fmt.Sprintf("tool %v (%v) %v", dep.Key(), dep.Status, message),
		})
	}

	for _, dep := range req.Tools {
		item := &toolPlan{dep: dep}
		result = append(result, item)

		switch dep.Status {
		case services.StatusSkipped:
			// Already reported when it was skipped.
			item.listed = true
			continue

		case services.StatusVerified:
			item.listed = true

		case services.StatusUnverified:
			if !permissive {
				warn(dep, "is not verified and was excluded from the collector")
				continue
			}
			item.listed = true
			warn(dep, "is not verified but was included in the collector")

		default:
			if !permissive {
				warn(dep, "was excluded from the collector")
				continue
			}
			item.listed = true
			warn(dep, "is listed in the collector without a binary")
			continue
		}

		item.archive_path = archivePath(dep, used_paths)
	}

	return result
}

func issueKind(status services.ToolStatus) services.IssueKind {
	switch status {
	case services.StatusUnverified:
		return services.KIND_UNVERIFIED_TOOL
	case services.StatusHashMismatch:
		return services.KIND_HASH_MISMATCH
	}
	return services.KIND_DOWNLOAD_ERROR
}

func archivePath(dep *services.ToolDependency, used map[string]bool) string {
	filename := utils.SanitizeFilename(dep.ArchiveFilename())
	dir := constants.TOOLS_DIR + "/" + dep.Platform + "/"
	path := dir + filename

	// Two versions of the same tool may share a filename and even the
	// same bytes.
	if used[path] && len(dep.Hash) >= 12 {
		path = dir + dep.Hash[:12] + "_" + filename
	}
	for n := 2; used[path]; n++ {
		path = fmt.Sprintf("%s%d_%s", dir, n, filename)
	}
	used[path] = true
	return path
}

// Tool keys listed against each artifact, following the mapping.
func listArtifactTools(req *Request, plan []*toolPlan) map[string][]string {
	listed_keys := make(map[services.DependencyKey]bool)
	for _, item := range plan {
		if item.listed && item.dep.Status != services.StatusSkipped {
			listed_keys[item.dep.Key()] = true
		}
	}

	result := make(map[string][]string)
	if req.Mapping == nil {
		return result
	}

	for _, entry := range req.Mapping.Entries() {
		key := entry.Key()
		if !listed_keys[key] {
			continue
		}
		result[entry.Artifact] = utils.AppendUnique(
			result[entry.Artifact], key.String())
	}
	return result
}

func writeMembers(
	ctx context.Context,
	container *Container,
	req *Request,
	plan []*toolPlan,
	listed map[string][]string,
	manifest *services.CollectionManifest) error {

	readme := buildReadme(req, plan)
	if req.Password != "" {
		_, err := container.WritePlainFile(
			ctx, constants.README_TXT, bytes.NewReader(readme))
		if err != nil {
			return err
		}
	}

	collector_config, err := encodeCollectorConfig(
		buildCollectorConfig(req, plan, listed))
	if err != nil {
		return err
	}

	_, err = container.WriteFile(ctx, constants.COLLECTOR_CONFIG,
		bytes.NewReader(collector_config))
	if err != nil {
		return err
	}

	if req.Password == "" {
		_, err := container.WriteFile(
			ctx, constants.README_TXT, bytes.NewReader(readme))
		if err != nil {
			return err
		}
	}

	for _, definition := range req.Artifacts {
		text, err := definitionText(definition)
		if err != nil {
			return err
		}
		_, err = container.WriteFile(ctx, artifactPath(definition.Name),
			bytes.NewReader(text))
		if err != nil {
			return err
		}
	}

	for _, item := range plan {
		if item.archive_path == "" {
			continue
		}
		err := writeBinary(ctx, container, item)
		if err != nil {
			return err
		}
	}

	inventory, err := buildInventoryCSV(plan)
	if err != nil {
		return err
	}
	_, err = container.WriteFile(ctx, constants.INVENTORY_CSV,
		bytes.NewReader(inventory))
	if err != nil {
		return err
	}

	manifest.Files = container.Files()
	serialized, err := json.MarshalIndent(manifest)
	if err != nil {
		return err
	}

	_, err = container.WriteFile(ctx, constants.BUILD_MANIFEST_JSON,
		bytes.NewReader(serialized))
	if err != nil {
		return err
	}

	_, err = container.WriteFile(ctx, constants.HASHES_FILE,
		bytes.NewReader(buildHashes(container.Files())))
	return err
}

func writeBinary(ctx context.Context, container *Container, item *toolPlan) error {
	if item.dep.LocalPath == "" {
		return fmt.Errorf("tool %v has no local file", item.dep.Key())
	}

	fd, err := os.Open(item.dep.LocalPath)
	if err != nil {
		return err
	}
	defer fd.Close()

	file, err := container.WriteFile(ctx, item.archive_path, fd)
	if err != nil {
		return err
	}

	// The cache was verified when the tool was fetched, but the
	// archive must hold exactly what was verified.
	if item.dep.Hash != "" && file.Sha256 != item.dep.Hash {
		return fmt.Errorf("tool %v changed on disk: expected %v got %v",
			item.dep.Key(), item.dep.Hash, file.Sha256)
	}
	return nil
}
