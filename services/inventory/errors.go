package inventory

import (
	"fmt"
	"strings"

	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services"
)

type statusError struct {
	Status string
}

func (self statusError) Error() string {
	return "HTTP status " + self.Status
}

// A tool could not be fetched. Recorded after all retries are spent.
type DownloadError struct {
	Tool      string
	URL       string
	Artifacts []string
	Attempts  int
	Err       error
}

func (self DownloadError) Error() string {
	if self.Attempts == 0 {
		return fmt.Sprintf("tool %v: %v", self.Tool, self.Err)
	}
	return fmt.Sprintf("tool %v: download from %v failed after %d attempt(s): %v",
		self.Tool, self.URL, self.Attempts, self.Err)
}

func (self DownloadError) Unwrap() error {
	return self.Err
}

func (self DownloadError) Issue() services.Issue {
	return services.Issue{
		Kind:     services.KIND_DOWNLOAD_ERROR,
		Artifact: joinArtifacts(self.Artifacts),
		Tool:     self.Tool,
		URL:      self.URL,
		Message:  self.Error(),
	}
}

// The downloaded bytes do not match the declared hash. The file is
// never kept.
type HashMismatchError struct {
	Tool      string
	URL       string
	Artifacts []string
	Expected  string
	Actual    string
}

func (self HashMismatchError) Error() string {
	return fmt.Sprintf("tool %v: hash mismatch for %v: expected %v got %v",
		self.Tool, self.URL, self.Expected, self.Actual)
}

func (self HashMismatchError) Issue() services.Issue {
	return services.Issue{
		Kind:     services.KIND_HASH_MISMATCH,
		Artifact: joinArtifacts(self.Artifacts),
		Tool:     self.Tool,
		URL:      self.URL,
		Message:  self.Error(),
	}
}

// A verified download could not be stored in the local cache. The
// remote side was fine.
type CacheError struct {
	Tool      string
	URL       string
	Artifacts []string
	Err       error
}

func (self CacheError) Error() string {
	return fmt.Sprintf("tool %v: storing download in the cache failed: %v",
		self.Tool, self.Err)
}

func (self CacheError) Unwrap() error {
	return self.Err
}

func (self CacheError) Issue() services.Issue {
	return services.Issue{
		Kind:     services.KIND_CACHE_ERROR,
		Artifact: joinArtifacts(self.Artifacts),
		Tool:     self.Tool,
		URL:      self.URL,
		Message:  self.Error(),
	}
}

func joinArtifacts(artifacts []string) string {
	return strings.Join(artifacts, ", ")
}
