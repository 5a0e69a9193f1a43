package services

import (
	"fmt"
	"strings"
)

// Lifecycle of a tool dependency during one build.
type ToolStatus int

const (
	StatusPending ToolStatus = iota
	StatusDownloading
	StatusVerified

	// Downloaded but there was no expected hash to check it against.
	StatusUnverified
	StatusHashMismatch
	StatusUnreachable
	StatusSkipped
)

var status_names = map[ToolStatus]string{
	StatusPending:      "Pending",
	StatusDownloading:  "Downloading",
	StatusVerified:     "Verified",
	StatusUnverified:   "Unverified",
	StatusHashMismatch: "HashMismatch",
	StatusUnreachable:  "Unreachable",
	StatusSkipped:      "Skipped",
}

func (self ToolStatus) String() string {
	name, pres := status_names[self]
	if !pres {
		return fmt.Sprintf("ToolStatus(%d)", int(self))
	}
	return name
}

func (self ToolStatus) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", self.String())), nil
}

func (self *ToolStatus) UnmarshalJSON(data []byte) error {
	name := strings.Trim(string(data), `"`)
	for k, v := range status_names {
		if v == name {
			*self = k
			return nil
		}
	}
	return fmt.Errorf("unknown tool status %v", string(data))
}

func (self ToolStatus) MarshalYAML() (interface{}, error) {
	return self.String(), nil
}

func (self ToolStatus) IsTerminal() bool {
	switch self {
	case StatusPending, StatusDownloading:
		return false
	}
	return true
}

// Failed tools never produce a binary.
func (self ToolStatus) IsFailed() bool {
	return self == StatusHashMismatch || self == StatusUnreachable
}

func isAllowedTransition(from, to ToolStatus) bool {
	switch from {
	case StatusPending:
		// A cache hit goes straight to Verified.
		return to == StatusDownloading || to == StatusSkipped ||
			to == StatusVerified
	case StatusDownloading:
		return to == StatusVerified || to == StatusUnverified ||
			to == StatusHashMismatch || to == StatusUnreachable
	}
	return false
}

type InvalidTransitionError struct {
	Tool     string
	From, To ToolStatus
}

func (self InvalidTransitionError) Error() string {
	return fmt.Sprintf("tool %v: invalid status transition %v -> %v",
		self.Tool, self.From, self.To)
}

// A reference to an external tool found in one artifact definition.
type ToolReference struct {
	Artifact         string `json:"artifact"`
	ToolName         string `json:"tool"`
	Platform         string `json:"platform"`
	VersionHint      string `json:"version,omitempty"`
	SourceURL        string `json:"url,omitempty"`
	ExpectedHash     string `json:"expected_hash,omitempty"`
	Filename         string `json:"filename,omitempty"`
	GithubProject    string `json:"github_project,omitempty"`
	GithubAssetRegex string `json:"github_asset_regex,omitempty"`

	// Either ORIGIN_TOOLS_BLOCK or ORIGIN_PARAMETER
	Origin string `json:"origin,omitempty"`
}

const (
	ORIGIN_TOOLS_BLOCK = "tools"
	ORIGIN_PARAMETER   = "parameter"

	SOURCE_DECLARED = "declared"
	SOURCE_CATALOG  = "catalog"
	SOURCE_GITHUB   = "github"
)

// Dependencies are deduplicated on this key.
type DependencyKey struct {
	ToolName    string
	Platform    string
	VersionHint string
}

func (self DependencyKey) String() string {
	result := self.ToolName + "/" + self.Platform
	if self.VersionHint != "" {
		result += "@" + self.VersionHint
	}
	return result
}

// One unique tool that has to be present in the collector.
type ToolDependency struct {
	ToolName    string `json:"tool"`
	Platform    string `json:"platform"`
	VersionHint string `json:"version,omitempty"`
	ResolvedURL string `json:"url,omitempty"`

	// Empty means the tool can not be verified.
	ExpectedHash string `json:"expected_hash,omitempty"`

	// Computed over the downloaded bytes.
	Hash      string     `json:"hash,omitempty"`
	LocalPath string     `json:"-"`
	Filename  string     `json:"filename,omitempty"`
	Size      int64      `json:"size,omitempty"`
	Status    ToolStatus `json:"status"`
	Source    string     `json:"source,omitempty"`

	GithubProject    string `json:"github_project,omitempty"`
	GithubAssetRegex string `json:"github_asset_regex,omitempty"`

	// Artifacts that reference this tool in insertion order.
	Artifacts []string `json:"artifacts"`
}

func (self *ToolDependency) Key() DependencyKey {
	return DependencyKey{
		ToolName:    self.ToolName,
		Platform:    self.Platform,
		VersionHint: self.VersionHint,
	}
}

// Move the dependency to a new status. Backwards or skipping
// transitions are rejected.
func (self *ToolDependency) Transition(to ToolStatus) error {
	if !isAllowedTransition(self.Status, to) {
		return InvalidTransitionError{
			Tool: self.Key().String(), From: self.Status, To: to}
	}
	self.Status = to
	return nil
}

func (self *ToolDependency) AddArtifact(name string) {
	for _, a := range self.Artifacts {
		if a == name {
			return
		}
	}
	self.Artifacts = append(self.Artifacts, name)
}

// The name the binary is stored under inside the collector.
func (self *ToolDependency) ArchiveFilename() string {
	if self.Filename != "" {
		return self.Filename
	}

	url := self.ResolvedURL
	if idx := strings.IndexAny(url, "?#"); idx >= 0 {
		url = url[:idx]
	}
	if idx := strings.LastIndex(url, "/"); idx >= 0 && idx < len(url)-1 {
		return url[idx+1:]
	}
	return self.ToolName
}

func (self *ToolDependency) Copy() *ToolDependency {
	result := *self
	result.Artifacts = append([]string{}, self.Artifacts...)
	return &result
}
