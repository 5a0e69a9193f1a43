package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/constants"
)

type Action string

const (
	ACTION_SCAN     Action = "Scan"
	ACTION_RESOLVE  Action = "Resolve"
	ACTION_DOWNLOAD Action = "Download"
	ACTION_BUILD    Action = "Build"
	ACTION_EXPORT   Action = "Export"
)

var all_actions = []Action{ACTION_SCAN, ACTION_RESOLVE, ACTION_DOWNLOAD,
	ACTION_BUILD, ACTION_EXPORT}

func ParseAction(name string) (Action, error) {
	for _, a := range all_actions {
		if strings.EqualFold(string(a), name) {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", name)
}

// Does the action resolve name only references against the catalog?
func (self Action) Resolves() bool {
	return self != ACTION_SCAN
}

func (self Action) Downloads() bool {
	return self == ACTION_DOWNLOAD || self == ACTION_BUILD
}

const (
	MODE_STRICT     = "strict"
	MODE_PERMISSIVE = "permissive"
)

// One edge of the artifact to tool mapping.
type MappingEntry struct {
	Artifact    string `json:"artifact"`
	Tool        string `json:"tool"`
	Platform    string `json:"platform"`
	VersionHint string `json:"version,omitempty"`
}

func (self MappingEntry) Key() DependencyKey {
	return DependencyKey{self.Tool, self.Platform, self.VersionHint}
}

// Insertion ordered set of mapping edges.
type ArtifactToolMapping struct {
	entries []MappingEntry
	seen    map[MappingEntry]bool
}

func NewArtifactToolMapping() *ArtifactToolMapping {
	return &ArtifactToolMapping{seen: make(map[MappingEntry]bool)}
}

// Returns false if the edge is already present.
func (self *ArtifactToolMapping) Add(entry MappingEntry) bool {
	if self.seen[entry] {
		return false
	}
	self.seen[entry] = true
	self.entries = append(self.entries, entry)
	return true
}

func (self *ArtifactToolMapping) Entries() []MappingEntry {
	return append([]MappingEntry{}, self.entries...)
}

func (self *ArtifactToolMapping) Len() int {
	return len(self.entries)
}

// A tool as recorded in the build manifest.
type ManifestTool struct {
	ToolName     string     `json:"tool"`
	Platform     string     `json:"platform"`
	VersionHint  string     `json:"version,omitempty"`
	URL          string     `json:"url,omitempty"`
	Filename     string     `json:"filename,omitempty"`
	ArchivePath  string     `json:"archive_path,omitempty"`
	ExpectedHash string     `json:"expected_hash,omitempty"`
	Hash         string     `json:"hash,omitempty"`
	Size         int64      `json:"size"`
	Status       ToolStatus `json:"status"`
	Artifacts    []string   `json:"artifacts"`
}

type ManifestFile struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Sha256 string `json:"sha256"`
}

// Describes exactly what went into one collector package.
type CollectionManifest struct {
	BuildID           string         `json:"build_id"`
	CreatedAt         time.Time      `json:"created_at"`
	Platform          string         `json:"platform"`
	Mode              string         `json:"mode"`
	SelectedArtifacts []string       `json:"selected_artifacts"`
	IncludedTools     []ManifestTool `json:"included_tools"`
	OutputPath        string         `json:"output_path"`

	// Every member of the archive written before the manifest.
	Files []ManifestFile `json:"files,omitempty"`
}

func NewBuildID(now time.Time) string {
	return constants.BUILD_PREFIX +
		now.UTC().Format("20060102T150405.000000000")
}

type BuildResult struct {
	Success bool   `json:"success"`
	Action  Action `json:"action"`

	ArtifactCount int `json:"artifact_count"`
	ToolCount     int `json:"tool_count"`

	Warnings []Issue `json:"warnings"`
	Errors   []Issue `json:"errors"`

	// Directory receiving the mapping exports.
	OutputArtifactsPath string `json:"output_artifacts_path,omitempty"`
	OutputPackagePath   string `json:"output_package_path,omitempty"`

	Mapping  []MappingEntry      `json:"mapping,omitempty"`
	Tools    []*ToolDependency   `json:"tools,omitempty"`
	Manifest *CollectionManifest `json:"manifest,omitempty"`
}

type Phase string

const (
	PHASE_SCAN     Phase = "scan"
	PHASE_EXTRACT  Phase = "extract"
	PHASE_MAP      Phase = "map"
	PHASE_DOWNLOAD Phase = "download"
	PHASE_PACKAGE  Phase = "package"
	PHASE_EXPORT   Phase = "export"
	PHASE_DONE     Phase = "done"
)

// Progress is reported as a stream of discrete events.
type ProgressEvent struct {
	Phase   Phase  `json:"phase"`
	Item    string `json:"item,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

type ProgressFunc func(event ProgressEvent)
