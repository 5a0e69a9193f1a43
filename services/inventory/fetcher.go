// Fetches the binaries of tool dependencies into the tool cache.
//
// Every dependency is owned by exactly one worker which moves it
// through Pending -> Downloading -> {Verified, Unverified,
// HashMismatch, Unreachable}. A cache hit goes straight from Pending
// to Verified without touching the network.
package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/alitto/pond/v2"
	"golang.org/x/time/rate"

	config_proto "github.com/Ununp3ntium115/Velociraptor-scripts-sub002/config/proto"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/constants"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/logging"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/networking"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services/cache"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/utils"
)

type FetcherOptions struct {
	Workers      int
	Retries      int
	RetryMinWait time.Duration
	RetryMaxWait time.Duration
	Timeout      time.Duration

	// 0 means unlimited.
	RequestsPerSecond float64

	DisableGithub bool
	GithubAPIURL  string
}

// Fill in the options from the builder config.
func OptionsFromConfig(config_obj *config_proto.Config) FetcherOptions {
	result := FetcherOptions{
		Workers:      constants.DEFAULT_WORKERS,
		Retries:      constants.DEFAULT_RETRIES,
		RetryMinWait: constants.DEFAULT_RETRY_MIN_WAIT,
		RetryMaxWait: constants.DEFAULT_RETRY_MAX_WAIT,
		Timeout:      constants.DEFAULT_DOWNLOAD_TIMEOUT,
		GithubAPIURL: DEFAULT_GITHUB_API,
	}

	if config_obj == nil || config_obj.Builder == nil {
		return result
	}

	builder := config_obj.Builder
	if builder.Workers > 0 {
		result.Workers = int(builder.Workers)
	}
	if builder.Retries > 0 {
		result.Retries = int(builder.Retries)
	}

	// Zero waits are allowed so tests do not sleep.
	result.RetryMinWait = time.Duration(builder.RetryMinWait) * time.Second
	result.RetryMaxWait = time.Duration(builder.RetryMaxWait) * time.Second

	if builder.DownloadTimeout > 0 {
		result.Timeout = time.Duration(builder.DownloadTimeout) * time.Second
	}
	result.RequestsPerSecond = builder.RequestsPerSecond
	result.DisableGithub = builder.DisableGithub
	if builder.GithubAPIURL != "" {
		result.GithubAPIURL = builder.GithubAPIURL
	}

	return result
}

type FetchResult struct {
	// In the same order as the input.
	Tools    []*services.ToolDependency
	Errors   []services.Issue
	Warnings []services.Issue
}

type Fetcher struct {
	config_obj *config_proto.Config
	options    FetcherOptions
	cache      *cache.Cache
	limiter    *rate.Limiter

	// Exposed so tests can replace them.
	Client networking.HTTPClient
	Clock  utils.Clock
}

func NewFetcher(
	config_obj *config_proto.Config,
	tool_cache *cache.Cache,
	options FetcherOptions) *Fetcher {

	if options.Workers <= 0 {
		options.Workers = constants.DEFAULT_WORKERS
	}
	if options.Workers > constants.MAX_WORKERS {
		options.Workers = constants.MAX_WORKERS
	}
	if options.Retries <= 0 {
		options.Retries = 1
	}
	if options.GithubAPIURL == "" {
		options.GithubAPIURL = DEFAULT_GITHUB_API
	}
	if options.Timeout <= 0 {
		options.Timeout = constants.DEFAULT_DOWNLOAD_TIMEOUT
	}

	result := &Fetcher{
		config_obj: config_obj,
		options:    options,
		cache:      tool_cache,
		Client:     networking.NewHTTPClient(options.Timeout),
		Clock:      utils.RealClock{},
	}

	if options.RequestsPerSecond > 0 {
		result.limiter = rate.NewLimiter(rate.Limit(options.RequestsPerSecond), 1)
	}

	return result
}

func (self *Fetcher) Options() FetcherOptions {
	return self.options
}

// Block until the rate limiter allows another request.
func (self *Fetcher) wait(ctx context.Context) error {
	if self.limiter == nil {
		return nil
	}
	return self.limiter.Wait(ctx)
}

type fetchOutcome struct {
	errors   []services.Issue
	warnings []services.Issue
}

func (self *fetchOutcome) addError(reporter services.IssueReporter) {
	self.errors = append(self.errors, reporter.Issue())
}

// Fetch all pending dependencies. Dependencies in other states are
// passed through untouched. progress may be nil and must be safe to
// call from multiple goroutines.
func (self *Fetcher) Fetch(
	ctx context.Context,
	deps []*services.ToolDependency,
	progress services.ProgressFunc) *FetchResult {

	logger := logging.GetLogger(self.config_obj, &logging.FetcherComponent)

	outcomes := make([]fetchOutcome, len(deps))
	pool := pond.NewPool(self.options.Workers)

	for idx, dep := range deps {
		if dep.Status != services.StatusPending {
			continue
		}

		pool.Submit(func() {
			self.fetchOne(ctx, dep, &outcomes[idx])

			metricToolDownloads.WithLabelValues(dep.Status.String()).Inc()
			if progress != nil {
				event := services.ProgressEvent{
					Phase:  services.PHASE_DOWNLOAD,
					Item:   dep.Key().String(),
					Status: dep.Status.String(),
				}
				if len(outcomes[idx].errors) > 0 {
					event.Message = outcomes[idx].errors[0].Message
				}
				progress(event)
			}
		})
	}
	pool.StopAndWait()

	result := &FetchResult{Tools: deps}
	for _, outcome := range outcomes {
		result.Errors = append(result.Errors, outcome.errors...)
		result.Warnings = append(result.Warnings, outcome.warnings...)
	}

	logger.Info("Fetched <green>%v</> tools with <red>%v</> errors",
		len(deps), len(result.Errors))

	return result
}

func (self *Fetcher) fetchOne(ctx context.Context,
	dep *services.ToolDependency, outcome *fetchOutcome) {

	logger := logging.GetLogger(self.config_obj, &logging.FetcherComponent)

	// Not started yet, so the tool stays Pending.
	if ctx.Err() != nil {
		outcome.addError(DownloadError{
			Tool:      dep.Key().String(),
			URL:       dep.ResolvedURL,
			Artifacts: dep.Artifacts,
			Err:       errors.New("cancelled"),
		})
		return
	}

	if self.fromCache(ctx, dep) {
		return
	}

	_ = dep.Transition(services.StatusDownloading)

	fail := func(err error, attempts int) {
		_ = dep.Transition(services.StatusUnreachable)
		outcome.addError(DownloadError{
			Tool:      dep.Key().String(),
			URL:       dep.ResolvedURL,
			Artifacts: dep.Artifacts,
			Attempts:  attempts,
			Err:       err,
		})
	}

	if dep.ResolvedURL == "" && dep.GithubProject != "" {
		if self.options.DisableGithub {
			fail(errors.New("github release resolution is disabled"), 0)
			return
		}

		url, err := self.getGithubRelease(ctx, dep)
		if err != nil {
			fail(err, 0)
			return
		}
		dep.ResolvedURL = url
		dep.Source = services.SOURCE_GITHUB
	}

	if dep.ResolvedURL == "" {
		fail(errors.New("no download url"), 0)
		return
	}

	logger.Info("Downloading tool <green>%v</> FROM <cyan>%v</>",
		dep.ToolName, dep.ResolvedURL)

	downloaded, attempts, err := self.download(ctx, dep)
	if err != nil {
		fail(err, attempts)
		return
	}

	if dep.ExpectedHash != "" && downloaded.hash != dep.ExpectedHash {
		_ = downloaded.remove()
		_ = dep.Transition(services.StatusHashMismatch)
		dep.Hash = downloaded.hash
		outcome.addError(HashMismatchError{
			Tool:      dep.Key().String(),
			URL:       dep.ResolvedURL,
			Artifacts: dep.Artifacts,
			Expected:  dep.ExpectedHash,
			Actual:    downloaded.hash,
		})
		logger.Error("Tool <red>%v</>: hash mismatch (expected %v got %v)",
			dep.ToolName, dep.ExpectedHash, downloaded.hash)
		return
	}

	path, err := self.cache.Put(downloaded.hash, downloaded.path)
	if err != nil {
		_ = downloaded.remove()
		_ = dep.Transition(services.StatusUnreachable)
		outcome.addError(CacheError{
			Tool:      dep.Key().String(),
			URL:       dep.ResolvedURL,
			Artifacts: dep.Artifacts,
			Err:       err,
		})
		logger.Error("Tool <red>%v</>: %v", dep.ToolName, err)
		return
	}
	downloaded.claim()

	dep.Hash = downloaded.hash
	dep.Size = downloaded.size
	dep.LocalPath = path

	if dep.ExpectedHash != "" {
		_ = dep.Transition(services.StatusVerified)
		return
	}

	_ = dep.Transition(services.StatusUnverified)
	outcome.warnings = append(outcome.warnings, services.Issue{
		Kind:     services.KIND_UNVERIFIED_TOOL,
		Artifact: joinArtifacts(dep.Artifacts),
		Tool:     dep.Key().String(),
		URL:      dep.ResolvedURL,
		Message: "tool " + dep.Key().String() +
			" has no expected hash; downloaded file has sha256 " +
			downloaded.hash,
	})
}

// Serve the dependency from the cache if we already hold a file with
// the expected hash.
func (self *Fetcher) fromCache(
	ctx context.Context, dep *services.ToolDependency) bool {
	if dep.ExpectedHash == "" || !self.cache.Has(dep.ExpectedHash) {
		return false
	}

	logger := logging.GetLogger(self.config_obj, &logging.FetcherComponent)
	size, err := self.cache.Verify(ctx, dep.ExpectedHash)
	if err != nil {
		if errors.Is(err, cache.CorruptEntryError) {
			logger.Warn("Cache entry for <yellow>%v</> is corrupt, fetching again: %v",
				dep.ToolName, err)
		}
		return false
	}

	path, _ := self.cache.Path(dep.ExpectedHash)
	dep.LocalPath = path
	dep.Hash = dep.ExpectedHash
	dep.Size = size
	_ = dep.Transition(services.StatusVerified)

	metricCacheHits.Inc()
	logger.Debug("Tool <green>%v</> served from cache", dep.ToolName)
	return true
}
