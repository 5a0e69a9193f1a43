package inventory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mccutchen/go-httpbin/v2/httpbin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	config_proto "github.com/Ununp3ntium115/Velociraptor-scripts-sub002/config/proto"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services/cache"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/utils"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/utils/tempfile"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/vtesting"
)

var (
	tool_content = "MZ this is a tool binary"
)

func sha(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

type MockClient struct {
	mu    sync.Mutex
	calls int
	cb    func(req *http.Request, call int) (*http.Response, error)
}

func (self *MockClient) Do(req *http.Request) (*http.Response, error) {
	self.mu.Lock()
	self.calls++
	call := self.calls
	self.mu.Unlock()

	return self.cb(req, call)
}

func (self *MockClient) Calls() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.calls
}

func response(status int, body string) *http.Response {
	return &http.Response{
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

type FetcherTestSuite struct {
	suite.Suite

	config_obj *config_proto.Config
	cache      *cache.Cache
	server     *httptest.Server
	clock      *utils.MockClock
}

func (self *FetcherTestSuite) SetupTest() {
	self.config_obj = vtesting.GetTestConfig(self.T())

	var err error
	self.cache, err = cache.NewCache(self.config_obj.Builder.CacheDirectory)
	require.NoError(self.T(), err)

	mux := http.NewServeMux()
	mux.HandleFunc("/download/tool.exe", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(tool_content))
	})
	mux.HandleFunc("/repos/Velocidex/Tool/releases/latest",
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `{"assets": [
  {"name": "tool_linux_amd64", "browser_download_url": "%s/download/linux"},
  {"name": "tool_windows_amd64.exe", "browser_download_url": "%s/download/tool.exe"}
]}`, self.server.URL, self.server.URL)
		})
	mux.Handle("/", httpbin.New())
	self.server = httptest.NewServer(mux)

	self.clock = &utils.MockClock{MockNow: time.Unix(1700000000, 0)}
}

func (self *FetcherTestSuite) TearDownTest() {
	self.server.Close()
}

func (self *FetcherTestSuite) newFetcher() *Fetcher {
	fetcher := NewFetcher(self.config_obj, self.cache,
		OptionsFromConfig(self.config_obj))
	fetcher.Clock = self.clock
	return fetcher
}

func (self *FetcherTestSuite) newDep(name, url, hash string) *services.ToolDependency {
	return &services.ToolDependency{
		ToolName:     name,
		Platform:     "windows",
		ResolvedURL:  url,
		ExpectedHash: hash,
		Artifacts:    []string{"Windows.Test." + name},
	}
}

// Temp dir of the cache must be empty after every fetch.
func (self *FetcherTestSuite) assertNoTempFiles() {
	entries, err := os.ReadDir(self.cache.TempDir())
	assert.NoError(self.T(), err)
	assert.Empty(self.T(), entries)
	assert.Empty(self.T(), tempfile.Outstanding())
}

func (self *FetcherTestSuite) TestDownloadVerified() {
	dep := self.newDep("Tool", self.server.URL+"/download/tool.exe", sha(tool_content))

	result := self.newFetcher().Fetch(context.Background(),
		[]*services.ToolDependency{dep}, nil)
	assert.Empty(self.T(), result.Errors)
	assert.Empty(self.T(), result.Warnings)

	assert.Equal(self.T(), services.StatusVerified, dep.Status)
	assert.Equal(self.T(), sha(tool_content), dep.Hash)
	assert.Equal(self.T(), int64(len(tool_content)), dep.Size)

	data, err := os.ReadFile(dep.LocalPath)
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), tool_content, string(data))
	assert.True(self.T(), self.cache.Has(dep.Hash))

	self.assertNoTempFiles()
}

func (self *FetcherTestSuite) TestCacheHitMakesNoRequests() {
	src := vtesting.WriteFile(self.T(), self.T().TempDir(), "tool.exe", tool_content)
	_, err := self.cache.Put(sha(tool_content), src)
	require.NoError(self.T(), err)

	client := &MockClient{cb: func(req *http.Request, call int) (*http.Response, error) {
		return nil, errors.New("network should not be used")
	}}

	before := testutil.ToFloat64(metricCacheHits)

	fetcher := self.newFetcher()
	fetcher.Client = client

	dep := self.newDep("Tool", "https://www.example.com/tool.exe", sha(tool_content))
	result := fetcher.Fetch(context.Background(),
		[]*services.ToolDependency{dep}, nil)

	assert.Empty(self.T(), result.Errors)
	assert.Equal(self.T(), 0, client.Calls())
	assert.Equal(self.T(), services.StatusVerified, dep.Status)
	assert.Equal(self.T(), before+1, testutil.ToFloat64(metricCacheHits))
}

func (self *FetcherTestSuite) TestCorruptCacheEntryIsRefetched() {
	hash := sha(tool_content)
	path, err := self.cache.Path(hash)
	require.NoError(self.T(), err)
	require.NoError(self.T(), os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(self.T(), os.WriteFile(path, []byte("tampered"), 0600))

	dep := self.newDep("Tool", self.server.URL+"/download/tool.exe", hash)
	result := self.newFetcher().Fetch(context.Background(),
		[]*services.ToolDependency{dep}, nil)

	assert.Empty(self.T(), result.Errors)
	assert.Equal(self.T(), services.StatusVerified, dep.Status)

	data, err := os.ReadFile(path)
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), tool_content, string(data))
}

func (self *FetcherTestSuite) TestHashMismatch() {
	wrong_hash := sha("something else")
	dep := self.newDep("Tool", self.server.URL+"/download/tool.exe", wrong_hash)

	result := self.newFetcher().Fetch(context.Background(),
		[]*services.ToolDependency{dep}, nil)

	assert.Equal(self.T(), services.StatusHashMismatch, dep.Status)
	require.Equal(self.T(), 1, len(result.Errors))
	assert.Equal(self.T(), services.KIND_HASH_MISMATCH, result.Errors[0].Kind)
	assert.Equal(self.T(), "Windows.Test.Tool", result.Errors[0].Artifact)
	assert.Contains(self.T(), result.Errors[0].Message, sha(tool_content))

	// The bad file is never kept.
	assert.Empty(self.T(), dep.LocalPath)
	assert.False(self.T(), self.cache.Has(sha(tool_content)))
	self.assertNoTempFiles()
}

func (self *FetcherTestSuite) TestUnverified() {
	dep := self.newDep("Tool", self.server.URL+"/download/tool.exe", "")

	result := self.newFetcher().Fetch(context.Background(),
		[]*services.ToolDependency{dep}, nil)

	assert.Empty(self.T(), result.Errors)
	require.Equal(self.T(), 1, len(result.Warnings))
	assert.Equal(self.T(), services.KIND_UNVERIFIED_TOOL, result.Warnings[0].Kind)

	assert.Equal(self.T(), services.StatusUnverified, dep.Status)
	assert.Equal(self.T(), sha(tool_content), dep.Hash)
	assert.True(self.T(), self.cache.Has(dep.Hash))
}

func (self *FetcherTestSuite) TestCacheWriteFailure() {
	path, err := self.cache.Path(sha(tool_content))
	require.NoError(self.T(), err)

	// A plain file where the cache shard directory should be.
	require.NoError(self.T(), os.MkdirAll(filepath.Dir(filepath.Dir(path)), 0700))
	require.NoError(self.T(), os.WriteFile(filepath.Dir(path), nil, 0600))

	dep := self.newDep("Tool", self.server.URL+"/download/tool.exe", sha(tool_content))
	result := self.newFetcher().Fetch(context.Background(),
		[]*services.ToolDependency{dep}, nil)

	require.Equal(self.T(), 1, len(result.Errors))
	assert.Equal(self.T(), services.KIND_CACHE_ERROR, result.Errors[0].Kind)
	assert.Contains(self.T(), result.Errors[0].Message, "cache")
	assert.NotContains(self.T(), result.Errors[0].Message, "download from")

	assert.Equal(self.T(), services.StatusUnreachable, dep.Status)
	assert.Empty(self.T(), dep.LocalPath)
	self.assertNoTempFiles()
}

func (self *FetcherTestSuite) TestRetriesExhausted() {
	self.config_obj.Builder.Retries = 3

	before := testutil.ToFloat64(
		metricToolDownloads.WithLabelValues(services.StatusUnreachable.String()))

	good := self.newDep("Good", self.server.URL+"/download/tool.exe", sha(tool_content))
	bad := self.newDep("Bad", self.server.URL+"/status/503", "")

	result := self.newFetcher().Fetch(context.Background(),
		[]*services.ToolDependency{bad, good}, nil)

	// Other tools are not affected.
	assert.Equal(self.T(), services.StatusVerified, good.Status)
	assert.Equal(self.T(), services.StatusUnreachable, bad.Status)

	require.Equal(self.T(), 1, len(result.Errors))
	assert.Equal(self.T(), services.KIND_DOWNLOAD_ERROR, result.Errors[0].Kind)
	assert.Contains(self.T(), result.Errors[0].Message, "after 3 attempt(s)")
	assert.Contains(self.T(), result.Errors[0].Message, "503")
	assert.Equal(self.T(), bad.ResolvedURL, result.Errors[0].URL)

	// Two waits between three attempts.
	assert.Equal(self.T(), 2, len(self.clock.Sleeps()))

	assert.Equal(self.T(), before+1, testutil.ToFloat64(
		metricToolDownloads.WithLabelValues(services.StatusUnreachable.String())))

	self.assertNoTempFiles()
}

func (self *FetcherTestSuite) TestClientErrorsAreRetried() {
	self.config_obj.Builder.Retries = 3

	client := &MockClient{cb: func(req *http.Request, call int) (*http.Response, error) {
		switch call {
		case 1:
			return response(404, "not found"), nil
		case 2:
			return response(500, "oops"), nil
		}
		return response(200, tool_content), nil
	}}

	fetcher := self.newFetcher()
	fetcher.Client = client

	dep := self.newDep("Tool", "https://www.example.com/tool.exe", sha(tool_content))
	result := fetcher.Fetch(context.Background(),
		[]*services.ToolDependency{dep}, nil)

	assert.Empty(self.T(), result.Errors)
	assert.Equal(self.T(), services.StatusVerified, dep.Status)
	assert.Equal(self.T(), 3, client.Calls())
}

func (self *FetcherTestSuite) TestBackoffSchedule() {
	options := OptionsFromConfig(self.config_obj)
	options.Retries = 3
	options.RetryMinWait = time.Second
	options.RetryMaxWait = 30 * time.Second

	fetcher := NewFetcher(self.config_obj, self.cache, options)
	fetcher.Clock = self.clock
	fetcher.Client = &MockClient{cb: func(req *http.Request, call int) (*http.Response, error) {
		return response(500, "oops"), nil
	}}

	dep := self.newDep("Tool", "https://www.example.com/tool.exe", "")
	fetcher.Fetch(context.Background(), []*services.ToolDependency{dep}, nil)

	assert.Equal(self.T(), services.StatusUnreachable, dep.Status)
	assert.Equal(self.T(), []time.Duration{2 * time.Second, 4 * time.Second},
		self.clock.Sleeps())
}

func (self *FetcherTestSuite) TestCancelled() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &MockClient{cb: func(req *http.Request, call int) (*http.Response, error) {
		return response(200, tool_content), nil
	}}

	fetcher := self.newFetcher()
	fetcher.Client = client

	deps := []*services.ToolDependency{
		self.newDep("A", "https://www.example.com/a.exe", ""),
		self.newDep("B", "https://www.example.com/b.exe", ""),
	}
	result := fetcher.Fetch(ctx, deps, nil)

	assert.Equal(self.T(), 0, client.Calls())
	for _, dep := range deps {
		assert.Equal(self.T(), services.StatusPending, dep.Status)
	}
	require.Equal(self.T(), 2, len(result.Errors))
	for _, issue := range result.Errors {
		assert.Equal(self.T(), services.KIND_DOWNLOAD_ERROR, issue.Kind)
		assert.Contains(self.T(), issue.Message, "cancelled")
	}
	self.assertNoTempFiles()
}

func (self *FetcherTestSuite) TestFileURL() {
	src := vtesting.WriteFile(self.T(), self.T().TempDir(), "mirror.exe", tool_content)

	dep := self.newDep("Tool", "file://"+filepath.ToSlash(src), sha(tool_content))
	result := self.newFetcher().Fetch(context.Background(),
		[]*services.ToolDependency{dep}, nil)

	assert.Empty(self.T(), result.Errors)
	assert.Equal(self.T(), services.StatusVerified, dep.Status)
}

func (self *FetcherTestSuite) TestGithubRelease() {
	self.config_obj.Builder.DisableGithub = false
	self.config_obj.Builder.GithubAPIURL = self.server.URL

	dep := self.newDep("Tool", "", sha(tool_content))
	dep.GithubProject = "Velocidex/Tool"
	dep.GithubAssetRegex = "windows_amd64.exe$"

	result := self.newFetcher().Fetch(context.Background(),
		[]*services.ToolDependency{dep}, nil)

	assert.Empty(self.T(), result.Errors)
	assert.Equal(self.T(), services.StatusVerified, dep.Status)
	assert.Equal(self.T(), self.server.URL+"/download/tool.exe", dep.ResolvedURL)
	assert.Equal(self.T(), services.SOURCE_GITHUB, dep.Source)
}

func (self *FetcherTestSuite) TestGithubDisabled() {
	dep := self.newDep("Tool", "", sha(tool_content))
	dep.GithubProject = "Velocidex/Tool"
	dep.GithubAssetRegex = "windows_amd64.exe$"

	result := self.newFetcher().Fetch(context.Background(),
		[]*services.ToolDependency{dep}, nil)

	assert.Equal(self.T(), services.StatusUnreachable, dep.Status)
	require.Equal(self.T(), 1, len(result.Errors))
	assert.Contains(self.T(), result.Errors[0].Message, "disabled")
}

func (self *FetcherTestSuite) TestOnlyPendingAreFetched() {
	client := &MockClient{cb: func(req *http.Request, call int) (*http.Response, error) {
		return response(200, tool_content), nil
	}}

	fetcher := self.newFetcher()
	fetcher.Client = client

	skipped := self.newDep("Skipped", "https://www.example.com/a.exe", "")
	require.NoError(self.T(), skipped.Transition(services.StatusSkipped))

	result := fetcher.Fetch(context.Background(),
		[]*services.ToolDependency{skipped}, nil)
	assert.Empty(self.T(), result.Errors)
	assert.Equal(self.T(), services.StatusSkipped, skipped.Status)
	assert.Equal(self.T(), 0, client.Calls())
}

func (self *FetcherTestSuite) TestSameBinaryManyTools() {
	var events []services.ProgressEvent
	var mu sync.Mutex

	deps := []*services.ToolDependency{}
	for i := 0; i < 10; i++ {
		deps = append(deps, self.newDep(fmt.Sprintf("Tool%d", i),
			self.server.URL+"/download/tool.exe", sha(tool_content)))
	}

	result := self.newFetcher().Fetch(context.Background(), deps,
		func(event services.ProgressEvent) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, event)
		})
	assert.Empty(self.T(), result.Errors)
	assert.Equal(self.T(), 10, len(events))

	for _, dep := range deps {
		assert.Equal(self.T(), services.StatusVerified, dep.Status)
		assert.Equal(self.T(), deps[0].LocalPath, dep.LocalPath)
	}
	for _, event := range events {
		assert.Equal(self.T(), services.PHASE_DOWNLOAD, event.Phase)
		assert.Equal(self.T(), "Verified", event.Status)
	}
	self.assertNoTempFiles()
}

func TestFetcher(t *testing.T) {
	suite.Run(t, &FetcherTestSuite{})
}
