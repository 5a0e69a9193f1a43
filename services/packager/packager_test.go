package packager

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/Velocidex/yaml/v2"
	"github.com/alexmullins/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/artifacts"
	config_proto "github.com/Ununp3ntium115/Velociraptor-scripts-sub002/config/proto"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/json"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/vtesting"
)

func sha(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func readMembers(t *testing.T, reader *zip.Reader, password string) map[string]string {
	result := make(map[string]string)
	for _, f := range reader.File {
		if f.IsEncrypted() {
			f.SetPassword(password)
		}
		fd, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(fd)
		fd.Close()
		require.NoError(t, err)
		result[f.Name] = string(data)
	}
	return result
}

func openArchive(t *testing.T, path, password string) map[string]string {
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	return readMembers(t, reader, password)
}

func sortedKeys(m map[string]string) []string {
	result := []string{}
	for k := range m {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

type PackagerTestSuite struct {
	suite.Suite

	config_obj *config_proto.Config
	output     string
	bin_dir    string

	verified, unverified, mismatch, skipped *services.ToolDependency
	mapping                                 *services.ArtifactToolMapping
	definitions                             []*artifacts.ArtifactDefinition
}

func (self *PackagerTestSuite) SetupTest() {
	self.config_obj = vtesting.GetTestConfig(self.T())
	self.output = self.config_obj.Builder.OutputPath
	self.bin_dir = self.T().TempDir()

	self.verified = &services.ToolDependency{
		ToolName:     "Autorunsc",
		Platform:     "windows",
		ResolvedURL:  "https://live.sysinternals.com/autorunsc64.exe",
		ExpectedHash: sha("autoruns"),
		Hash:         sha("autoruns"),
		Size:         8,
		LocalPath:    vtesting.WriteFile(self.T(), self.bin_dir, "autoruns", "autoruns"),
		Status:       services.StatusVerified,
		Artifacts:    []string{"Windows.Sys.Autoruns"},
	}

	self.unverified = &services.ToolDependency{
		ToolName:    "Yara",
		Platform:    "windows",
		ResolvedURL: "https://github.com/VirusTotal/yara/releases/yara64.exe",
		Hash:        sha("yara"),
		Size:        4,
		LocalPath:   vtesting.WriteFile(self.T(), self.bin_dir, "yara", "yara"),
		Status:      services.StatusUnverified,
		Artifacts:   []string{"Windows.Detection.Yara"},
	}

	self.mismatch = &services.ToolDependency{
		ToolName:     "WinPmem",
		Platform:     "windows",
		ResolvedURL:  "https://github.com/Velocidex/WinPmem/winpmem.exe",
		ExpectedHash: sha("winpmem"),
		Status:       services.StatusHashMismatch,
		Artifacts:    []string{"Windows.Sys.Autoruns"},
	}

	self.skipped = &services.ToolDependency{
		ToolName:  "LinuxOnly",
		Platform:  "linux",
		Status:    services.StatusSkipped,
		Artifacts: []string{"Windows.Detection.Yara"},
	}

	self.mapping = services.NewArtifactToolMapping()
	self.mapping.Add(services.MappingEntry{
		Artifact: "Windows.Sys.Autoruns", Tool: "Autorunsc", Platform: "windows"})
	self.mapping.Add(services.MappingEntry{
		Artifact: "Windows.Sys.Autoruns", Tool: "WinPmem", Platform: "windows"})
	self.mapping.Add(services.MappingEntry{
		Artifact: "Windows.Detection.Yara", Tool: "Yara", Platform: "windows"})
	self.mapping.Add(services.MappingEntry{
		Artifact: "Windows.Detection.Yara", Tool: "LinuxOnly", Platform: "linux"})

	self.definitions = []*artifacts.ArtifactDefinition{{
		Name: "Windows.Sys.Autoruns",
		Raw:  "name: Windows.Sys.Autoruns\n",
		Parameters: []artifacts.Parameter{{
			Name: "AutorunArgs", Default: "-nobanner -accepteula"}},
	}, {
		Name: "Windows.Detection.Yara",
		Raw:  "name: Windows.Detection.Yara\n",
	}}
}

func (self *PackagerTestSuite) request(mode string) *Request {
	return &Request{
		BuildID:         services.NewBuildID(time.Unix(1700000000, 0)),
		CreatedAt:       time.Unix(1700000000, 0),
		Platform:        "windows",
		Mode:            mode,
		OutputDirectory: self.output,
		Artifacts:       self.definitions,
		Tools: []*services.ToolDependency{
			self.verified, self.unverified, self.mismatch, self.skipped},
		Mapping: self.mapping,
	}
}

func (self *PackagerTestSuite) TestStrict() {
	manifest, report, err := Package(context.Background(), self.config_obj,
		self.request(services.MODE_STRICT))
	require.NoError(self.T(), err)

	assert.Equal(self.T(),
		filepath.Join(self.output, "Collector_B.20231114T221320.000000000.zip"),
		report.Path)
	assert.Equal(self.T(), 1, report.Binaries)

	// Unverified and mismatched tools are both excluded with a warning.
	require.Equal(self.T(), 2, len(report.Warnings))
	assert.Equal(self.T(), services.KIND_UNVERIFIED_TOOL, report.Warnings[0].Kind)
	assert.Contains(self.T(), report.Warnings[0].Message, "excluded")
	assert.Equal(self.T(), services.KIND_HASH_MISMATCH, report.Warnings[1].Kind)

	// Only verified or skipped tools reach the manifest.
	require.Equal(self.T(), 2, len(manifest.IncludedTools))
	for _, tool := range manifest.IncludedTools {
		assert.True(self.T(), tool.Status == services.StatusVerified ||
			tool.Status == services.StatusSkipped)
	}
	assert.Equal(self.T(), []string{"Windows.Sys.Autoruns", "Windows.Detection.Yara"},
		manifest.SelectedArtifacts)

	members := openArchive(self.T(), report.Path, "")
	assert.Equal(self.T(), []string{
		"README.txt",
		"artifacts/Windows.Detection.Yara.yaml",
		"artifacts/Windows.Sys.Autoruns.yaml",
		"build-manifest.json",
		"collector.yaml",
		"hashes.sha256",
		"tools/inventory.csv",
		"tools/windows/autorunsc64.exe",
	}, sortedKeys(members))

	assert.Equal(self.T(), "autoruns", members["tools/windows/autorunsc64.exe"])
	assert.Equal(self.T(), "name: Windows.Sys.Autoruns\n",
		members["artifacts/Windows.Sys.Autoruns.yaml"])

	collector := &CollectorConfig{}
	require.NoError(self.T(), yaml.Unmarshal([]byte(members["collector.yaml"]), collector))
	require.Equal(self.T(), 2, len(collector.Artifacts))
	assert.Equal(self.T(), []string{"Autorunsc/windows"}, collector.Artifacts[0].Tools)
	assert.Equal(self.T(), "-nobanner -accepteula",
		collector.Artifacts[0].Parameters[0].Default)
	assert.Empty(self.T(), collector.Artifacts[1].Tools)

	assert.Equal(self.T(), "ToolName,Platform,Filename,ExpectedHash,Size,Status\n"+
		"Autorunsc,windows,tools/windows/autorunsc64.exe,"+sha("autoruns")+",8,Verified\n",
		members["tools/inventory.csv"])

	// Every line of hashes.sha256 matches the member content.
	lines := strings.Split(strings.TrimSpace(members["hashes.sha256"]), "\n")
	assert.Equal(self.T(), len(members)-1, len(lines))
	for _, line := range lines {
		parts := strings.SplitN(line, "  ", 2)
		require.Equal(self.T(), 2, len(parts))
		assert.Equal(self.T(), sha(members[parts[1]]), parts[0], parts[1])
	}

	stored := &services.CollectionManifest{}
	require.NoError(self.T(), json.Unmarshal(
		[]byte(members["build-manifest.json"]), stored))
	assert.Equal(self.T(), manifest.BuildID, stored.BuildID)
	assert.Equal(self.T(), 6, len(stored.Files))

	// No temp files are left behind.
	assert.Equal(self.T(), []string{filepath.Base(report.Path)},
		vtesting.ListFiles(self.T(), self.output))
}

func (self *PackagerTestSuite) TestPermissive() {
	manifest, report, err := Package(context.Background(), self.config_obj,
		self.request(services.MODE_PERMISSIVE))
	require.NoError(self.T(), err)

	assert.Equal(self.T(), 2, report.Binaries)
	assert.Equal(self.T(), 4, len(manifest.IncludedTools))

	// Both the unverified and the failed tool are flagged.
	require.Equal(self.T(), 2, len(report.Warnings))
	assert.Contains(self.T(), report.Warnings[0].Message, "included")
	assert.Contains(self.T(), report.Warnings[1].Message, "without a binary")

	members := openArchive(self.T(), report.Path, "")
	assert.Equal(self.T(), "yara", members["tools/windows/yara64.exe"])

	collector := &CollectorConfig{}
	require.NoError(self.T(), yaml.Unmarshal([]byte(members["collector.yaml"]), collector))
	assert.Equal(self.T(), []string{"Autorunsc/windows", "WinPmem/windows"},
		collector.Artifacts[0].Tools)
	assert.Equal(self.T(), []string{"Yara/windows"}, collector.Artifacts[1].Tools)
}

func (self *PackagerTestSuite) TestPassword() {
	req := self.request(services.MODE_STRICT)
	req.Password = "hunter2"

	_, report, err := Package(context.Background(), self.config_obj, req)
	require.NoError(self.T(), err)

	outer := openArchive(self.T(), report.Path, "hunter2")
	assert.Equal(self.T(), []string{"README.txt", "data.zip"}, sortedKeys(outer))
	assert.Contains(self.T(), outer["README.txt"], "data.zip")

	data := outer["data.zip"]
	reader, err := zip.NewReader(strings.NewReader(data), int64(len(data)))
	require.NoError(self.T(), err)

	inner := readMembers(self.T(), reader, "")
	assert.Equal(self.T(), "autoruns", inner["tools/windows/autorunsc64.exe"])
	assert.Contains(self.T(), inner, "collector.yaml")
}

func (self *PackagerTestSuite) TestFailureLeavesNothing() {
	self.verified.LocalPath = filepath.Join(self.bin_dir, "missing")

	_, _, err := Package(context.Background(), self.config_obj,
		self.request(services.MODE_STRICT))
	require.Error(self.T(), err)

	packaging_error, ok := err.(*PackagingError)
	require.True(self.T(), ok)
	assert.Equal(self.T(), services.KIND_PACKAGING_ERROR, packaging_error.Issue().Kind)

	assert.Empty(self.T(), vtesting.ListFiles(self.T(), self.output))
}

func (self *PackagerTestSuite) TestModifiedBinary() {
	require.NoError(self.T(), os.WriteFile(self.verified.LocalPath,
		[]byte("replaced"), 0600))

	_, _, err := Package(context.Background(), self.config_obj,
		self.request(services.MODE_STRICT))
	require.Error(self.T(), err)
	assert.Contains(self.T(), err.Error(), "changed on disk")
	assert.Empty(self.T(), vtesting.ListFiles(self.T(), self.output))
}

func (self *PackagerTestSuite) TestCancelled() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Package(ctx, self.config_obj, self.request(services.MODE_STRICT))
	require.Error(self.T(), err)
	assert.ErrorIs(self.T(), err, context.Canceled)
	assert.Empty(self.T(), vtesting.ListFiles(self.T(), self.output))
}

func (self *PackagerTestSuite) TestSameFilenameTwice() {
	req := self.request(services.MODE_STRICT)
	req.Tools = nil
	for _, version := range []string{"4.3", "4.4", "4.5"} {
		req.Tools = append(req.Tools, &services.ToolDependency{
			ToolName:     "Yara",
			Platform:     "windows",
			VersionHint:  version,
			ResolvedURL:  "https://github.com/VirusTotal/yara/releases/yara64.exe",
			ExpectedHash: sha("yara"),
			Hash:         sha("yara"),
			Size:         4,
			LocalPath: vtesting.WriteFile(self.T(), self.bin_dir,
				"yara-"+version, "yara"),
			Status:    services.StatusVerified,
			Artifacts: []string{"Windows.Detection.Yara"},
		})
	}

	_, report, err := Package(context.Background(), self.config_obj, req)
	require.NoError(self.T(), err)
	assert.Equal(self.T(), 3, report.Binaries)

	data, err := os.ReadFile(report.Path)
	require.NoError(self.T(), err)
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(self.T(), err)

	names := make(map[string]bool)
	for _, f := range reader.File {
		assert.False(self.T(), names[f.Name], "duplicate member %v", f.Name)
		names[f.Name] = true
	}

	members := readMembers(self.T(), reader, "")
	assert.Equal(self.T(), "yara", members["tools/windows/yara64.exe"])
	assert.Equal(self.T(), "yara", members["tools/windows/"+sha("yara")[:12]+"_yara64.exe"])
	assert.Equal(self.T(), "yara", members["tools/windows/2_yara64.exe"])
}

type failingFile struct {
	closed bool
}

func (self *failingFile) Write(b []byte) (int, error) {
	return 0, errors.New("disk full")
}

func (self *failingFile) Close() error {
	self.closed = true
	return nil
}

func TestContainerCloseReleasesFile(t *testing.T) {
	for _, password := range []string{"", "hunter2"} {
		fd := &failingFile{}
		container := NewContainer(fd, password)
		_, err := container.WriteFile(context.Background(), "collector.yaml",
			strings.NewReader("name: test\n"))
		require.NoError(t, err)

		err = container.Close()
		assert.Error(t, err)
		assert.True(t, fd.closed, password)
	}
}

func TestPackager(t *testing.T) {
	suite.Run(t, &PackagerTestSuite{})
}
