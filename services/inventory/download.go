package inventory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/constants"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/logging"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/utils"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/utils/tempfile"
)

// A completed download sitting in the cache's temp directory.
type downloadedFile struct {
	path string
	hash string
	size int64
}

func (self *downloadedFile) remove() error {
	return tempfile.RemoveTempFile(self.path)
}

// The file was moved into the cache.
func (self *downloadedFile) claim() {
	tempfile.Claim(self.path)
}

// Download with retries. Returns the number of attempts made.
func (self *Fetcher) download(ctx context.Context,
	dep *services.ToolDependency) (*downloadedFile, int, error) {

	logger := logging.GetLogger(self.config_obj, &logging.FetcherComponent)

	attempt := 0
	for {
		attempt++

		err := self.wait(ctx)
		if err != nil {
			return nil, attempt, err
		}

		result, resp, err := self.downloadOnce(ctx, dep)
		if err == nil {
			return result, attempt, nil
		}

		if !self.shouldRetry(ctx, resp, err) {
			return nil, attempt, err
		}

		if attempt >= self.options.Retries {
			return nil, attempt, err
		}

		wait := retryablehttp.DefaultBackoff(
			self.options.RetryMinWait, self.options.RetryMaxWait, attempt, resp)
		logger.Info("Download of <green>%v</> failed (%v), retrying in %v",
			dep.ToolName, err, wait)

		err = utils.SleepWithCtx(ctx, self.Clock, wait)
		if err != nil {
			return nil, attempt, err
		}
	}
}

// Transport errors are retried unless they can never succeed (bad
// scheme, certificate errors). Every 4xx and 5xx is retried.
func (self *Fetcher) shouldRetry(
	ctx context.Context, resp *http.Response, err error) bool {
	if ctx.Err() != nil {
		return false
	}

	if resp != nil && resp.StatusCode >= 400 {
		return true
	}

	retry, _ := retryablehttp.ErrorPropagatedRetryPolicy(ctx, resp, err)
	return retry
}

// A single attempt. The response is only returned for a bad status
// so the retry policy can inspect it. Its body is already closed.
func (self *Fetcher) downloadOnce(ctx context.Context,
	dep *services.ToolDependency) (*downloadedFile, *http.Response, error) {

	sub_ctx, cancel := context.WithTimeout(ctx, self.options.Timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(sub_ctx, "GET", dep.ResolvedURL, nil)
	if err != nil {
		return nil, nil, err
	}
	request.Header.Set("User-Agent", constants.USER_AGENT)

	res, err := self.Client.Do(request)
	if err != nil {
		return nil, nil, err
	}
	defer res.Body.Close()

	// If the download failed, we can not store this tool.
	if res.StatusCode != 200 {
		return nil, res, fmt.Errorf("Unable to download file from %v: %w",
			dep.ResolvedURL, statusError{res.Status})
	}

	fd, err := tempfile.TempFileIn(self.cache.TempDir(),
		"tmp*"+utils.SanitizeFilename(dep.ArchiveFilename()))
	if err != nil {
		return nil, nil, err
	}

	sha_sum := sha256.New()
	n, err := utils.Copy(sub_ctx, fd, io.TeeReader(res.Body, sha_sum))
	metricDownloadBytes.Add(float64(n))

	close_err := fd.Close()
	if err == nil {
		err = close_err
	}

	if err != nil {
		_ = tempfile.RemoveTempFile(fd.Name())
		return nil, nil, err
	}

	return &downloadedFile{
		path: fd.Name(),
		hash: hex.EncodeToString(sha_sum.Sum(nil)),
		size: n,
	}, nil, nil
}
