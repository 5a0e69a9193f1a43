package inventory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/constants"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/json"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/logging"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/utils"
)

const DEFAULT_GITHUB_API = "https://api.github.com"

type githubReleasesAPI struct {
	Assets []githubAssets `json:"assets"`
}

type githubAssets struct {
	Name               string `json:"name"`
	BrowserDownloadUrl string `json:"browser_download_url"`
}

// Find the download url of the first asset in the latest release of
// the tool's Github project that matches its asset regex.
func (self *Fetcher) getGithubRelease(
	ctx context.Context, tool *services.ToolDependency) (string, error) {

	if tool.GithubAssetRegex == "" {
		return "", errors.New("github_asset_regex is not set")
	}

	release_re, err := regexp.Compile(tool.GithubAssetRegex)
	if err != nil {
		return "", err
	}

	err = self.wait(ctx)
	if err != nil {
		return "", err
	}

	logger := logging.GetLogger(self.config_obj, &logging.FetcherComponent)
	url := fmt.Sprintf("%s/repos/%s/releases/latest",
		strings.TrimSuffix(self.options.GithubAPIURL, "/"), tool.GithubProject)
	request, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", err
	}

	request.Header.Set("User-Agent", constants.USER_AGENT)
	logger.Info("Resolving latest Github release for <green>%v</>", tool.ToolName)
	res, err := self.Client.Do(request)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode != 200 {
		return "", fmt.Errorf("Github API %v: %w", url, statusError{res.Status})
	}

	response, err := utils.ReadAllWithLimit(res.Body, constants.MAX_MEMORY)
	if err != nil {
		return "", fmt.Errorf("While making Github API call to %v: %w", url, err)
	}

	api_obj := &githubReleasesAPI{}
	err = json.Unmarshal(response, api_obj)
	if err != nil {
		return "", fmt.Errorf("While making Github API call to %v: %w", url, err)
	}

	for _, asset := range api_obj.Assets {
		if release_re.MatchString(asset.Name) {
			logger.Info("Tool <green>%v</> can be found at <cyan>%v</>",
				tool.ToolName, asset.BrowserDownloadUrl)
			return asset.BrowserDownloadUrl, nil
		}
	}

	return "", errors.New("Release not found from github API " + url)
}
