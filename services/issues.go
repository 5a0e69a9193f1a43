package services

import (
	"errors"
	"fmt"
	"strings"
)

type IssueKind string

const (
	KIND_PARSE_ERROR        IssueKind = "ParseError"
	KIND_UNRESOLVED_TOOL    IssueKind = "UnresolvedToolReference"
	KIND_DOWNLOAD_ERROR     IssueKind = "DownloadError"
	KIND_HASH_MISMATCH      IssueKind = "HashMismatchError"
	KIND_CACHE_ERROR        IssueKind = "CacheError"
	KIND_PACKAGING_ERROR    IssueKind = "PackagingError"
	KIND_CONFLICT_WARNING   IssueKind = "ConflictWarning"
	KIND_UNVERIFIED_TOOL    IssueKind = "UnverifiedTool"
	KIND_PLATFORM_FILTERED  IssueKind = "PlatformFiltered"
	KIND_DUPLICATE_ARTIFACT IssueKind = "DuplicateArtifact"
	KIND_INVALID_REFERENCE  IssueKind = "InvalidReference"
	KIND_INPUT_ERROR        IssueKind = "InputError"
	KIND_CANCELLED          IssueKind = "Cancelled"
)

// A single warning or error with enough context to identify the
// item it is about.
type Issue struct {
	Kind     IssueKind `json:"kind"`
	Artifact string    `json:"artifact,omitempty"`
	Tool     string    `json:"tool,omitempty"`
	URL      string    `json:"url,omitempty"`
	Message  string    `json:"message"`
}

func (self Issue) String() string {
	context := []string{}
	if self.Artifact != "" {
		context = append(context, "artifact="+self.Artifact)
	}
	if self.Tool != "" {
		context = append(context, "tool="+self.Tool)
	}
	if self.URL != "" {
		context = append(context, "url="+self.URL)
	}

	if len(context) == 0 {
		return fmt.Sprintf("%v: %v", self.Kind, self.Message)
	}
	return fmt.Sprintf("%v [%v]: %v", self.Kind,
		strings.Join(context, " "), self.Message)
}

// Errors that know how to describe themselves as an issue.
type IssueReporter interface {
	error
	Issue() Issue
}

// Convert any error into an issue. Errors that do not carry their
// own context are reported with the fallback kind.
func IssueFromError(err error, fallback IssueKind) Issue {
	var reporter IssueReporter
	if errors.As(err, &reporter) {
		return reporter.Issue()
	}
	return Issue{Kind: fallback, Message: err.Error()}
}

// A tool that is referenced by name only and could not be located in
// the catalog.
type UnresolvedToolReference struct {
	Artifact    string
	ToolName    string
	Platform    string
	VersionHint string
}

func (self UnresolvedToolReference) Error() string {
	return fmt.Sprintf("tool %v has no url and is not in the catalog",
		DependencyKey{self.ToolName, self.Platform, self.VersionHint})
}

func (self UnresolvedToolReference) Issue() Issue {
	return Issue{
		Kind:     KIND_UNRESOLVED_TOOL,
		Artifact: self.Artifact,
		Tool:     self.ToolName,
		Message:  self.Error(),
	}
}

// Two artifacts declare different values for the same tool. The
// first declaration wins.
type ConflictWarning struct {
	ToolName string
	Field    string

	FirstArtifact, FirstValue   string
	SecondArtifact, SecondValue string
}

func (self ConflictWarning) Error() string {
	return fmt.Sprintf(
		"conflicting %v for tool %v: %v declares %q, %v declares %q (keeping %q)",
		self.Field, self.ToolName,
		self.FirstArtifact, self.FirstValue,
		self.SecondArtifact, self.SecondValue, self.FirstValue)
}

func (self ConflictWarning) Issue() Issue {
	issue := Issue{
		Kind:     KIND_CONFLICT_WARNING,
		Artifact: self.SecondArtifact,
		Tool:     self.ToolName,
		Message:  self.Error(),
	}
	if self.Field == "url" {
		issue.URL = self.SecondValue
	}
	return issue
}
