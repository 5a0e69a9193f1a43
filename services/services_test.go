package services

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	dep := &ToolDependency{ToolName: "Autorunsc", Platform: "windows"}
	assert.Equal(t, StatusPending, dep.Status)

	require.NoError(t, dep.Transition(StatusDownloading))
	require.NoError(t, dep.Transition(StatusVerified))
	assert.True(t, dep.Status.IsTerminal())

	// No backward transitions.
	err := dep.Transition(StatusPending)
	require.Error(t, err)

	var transition_err InvalidTransitionError
	assert.True(t, errors.As(err, &transition_err))
	assert.Equal(t, StatusVerified, transition_err.From)

	// Cache hits verify without downloading.
	dep = &ToolDependency{ToolName: "Autorunsc"}
	require.NoError(t, dep.Transition(StatusVerified))

	// A skipped tool can not later be downloaded.
	dep = &ToolDependency{ToolName: "Autorunsc"}
	require.NoError(t, dep.Transition(StatusSkipped))
	assert.Error(t, dep.Transition(StatusDownloading))

	// Downloads must finish in a terminal state.
	dep = &ToolDependency{ToolName: "Autorunsc"}
	require.NoError(t, dep.Transition(StatusDownloading))
	assert.Error(t, dep.Transition(StatusSkipped))
	assert.Error(t, dep.Transition(StatusDownloading))
	require.NoError(t, dep.Transition(StatusHashMismatch))
	assert.True(t, dep.Status.IsFailed())
}

func TestStatusStrings(t *testing.T) {
	for status, name := range status_names {
		assert.Equal(t, name, status.String())
		serialized, err := status.MarshalJSON()
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("%q", name), string(serialized))
	}
	assert.Equal(t, "ToolStatus(99)", ToolStatus(99).String())
}

func TestPlatforms(t *testing.T) {
	for _, tc := range []struct {
		in, out string
		ok      bool
	}{
		{"", PLATFORM_ANY, true},
		{"Windows", PLATFORM_WINDOWS, true},
		{"win", PLATFORM_WINDOWS, true},
		{"MacOS", PLATFORM_DARWIN, true},
		{"osx", PLATFORM_DARWIN, true},
		{"all", PLATFORM_ANY, true},
		{"linux", PLATFORM_LINUX, true},
		{"solaris", PLATFORM_ANY, false},
	} {
		out, ok := NormalizePlatform(tc.in)
		assert.Equal(t, tc.out, out, tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
	}

	assert.Equal(t, PLATFORM_WINDOWS,
		PlatformFromArtifactName("Windows.Sysinternals.Autoruns"))
	assert.Equal(t, PLATFORM_DARWIN, PlatformFromArtifactName("MacOS.System.Plist"))
	assert.Equal(t, PLATFORM_LINUX, PlatformFromArtifactName("Linux.Sys.Pslist"))
	assert.Equal(t, PLATFORM_ANY, PlatformFromArtifactName("Generic.Forensic.Timeline"))
	assert.Equal(t, "Generic", ArtifactCategory("Generic.Forensic.Timeline"))

	assert.True(t, PlatformMatches("", PLATFORM_WINDOWS))
	assert.True(t, PlatformMatches(PLATFORM_WINDOWS, PLATFORM_ANY))
	assert.False(t, PlatformMatches(PLATFORM_WINDOWS, PLATFORM_LINUX))
}

func TestMappingIsDuplicateFree(t *testing.T) {
	mapping := NewArtifactToolMapping()
	a := MappingEntry{Artifact: "A", Tool: "T", Platform: "windows"}
	b := MappingEntry{Artifact: "B", Tool: "T", Platform: "windows"}

	assert.True(t, mapping.Add(a))
	assert.True(t, mapping.Add(b))
	assert.False(t, mapping.Add(a))
	assert.Equal(t, []MappingEntry{a, b}, mapping.Entries())
}

func TestArchiveFilename(t *testing.T) {
	dep := &ToolDependency{ToolName: "Autorunsc",
		ResolvedURL: "https://live.sysinternals.com/tools/autorunsc64.exe?x=1"}
	assert.Equal(t, "autorunsc64.exe", dep.ArchiveFilename())

	dep.Filename = "autoruns.exe"
	assert.Equal(t, "autoruns.exe", dep.ArchiveFilename())

	dep = &ToolDependency{ToolName: "Yara"}
	assert.Equal(t, "Yara", dep.ArchiveFilename())
}

func TestIssues(t *testing.T) {
	conflict := ConflictWarning{
		ToolName: "Yara", Field: "url",
		FirstArtifact: "A", FirstValue: "http://a",
		SecondArtifact: "B", SecondValue: "http://b",
	}
	issue := IssueFromError(fmt.Errorf("wrapped: %w", conflict), KIND_INPUT_ERROR)
	assert.Equal(t, KIND_CONFLICT_WARNING, issue.Kind)
	assert.Equal(t, "http://b", issue.URL)
	assert.Contains(t, issue.Message, `A declares "http://a"`)

	issue = IssueFromError(errors.New("boom"), KIND_INPUT_ERROR)
	assert.Equal(t, "InputError: boom", issue.String())

	issue = UnresolvedToolReference{Artifact: "A", ToolName: "T",
		Platform: "any"}.Issue()
	assert.Equal(t,
		"UnresolvedToolReference [artifact=A tool=T]: tool T/any has no url and is not in the catalog",
		issue.String())
}

func TestBuildID(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 20, 30, 123, time.UTC)
	assert.Equal(t, "B.20240301T102030.000000123", NewBuildID(now))

	action, err := ParseAction("build")
	require.NoError(t, err)
	assert.Equal(t, ACTION_BUILD, action)
	assert.True(t, action.Downloads())
	assert.False(t, ACTION_SCAN.Resolves())

	_, err = ParseAction("deploy")
	assert.Error(t, err)
}
