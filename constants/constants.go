package constants

import "time"

var (
	VERSION    = "0.1.0"
	USER_AGENT = "collector-builder/" + VERSION

	// Prefix for build ids. Collection manifests are named after the
	// build id.
	BUILD_PREFIX = "B."
)

const (
	// Maximum size of an API response (e.g. the Github release list)
	// we are prepared to hold in memory.
	MAX_MEMORY = 5 * 1024 * 1024

	DEFAULT_WORKERS = 4
	MAX_WORKERS     = 32
	DEFAULT_RETRIES = 3

	DEFAULT_RETRY_MIN_WAIT   = time.Second
	DEFAULT_RETRY_MAX_WAIT   = 30 * time.Second
	DEFAULT_DOWNLOAD_TIMEOUT = 10 * time.Minute

	// Names of the output files written next to the package.
	TOOL_MAPPING_JSON   = "tool-mapping.json"
	TOOL_MAPPING_CSV    = "tool-mapping.csv"
	BUILD_MANIFEST_JSON = "build-manifest.json"
	SUMMARY_TXT         = "summary.txt"

	// Members of the collector archive.
	COLLECTOR_CONFIG = "collector.yaml"
	README_TXT       = "README.txt"
	HASHES_FILE      = "hashes.sha256"
	TOOLS_DIR        = "tools"
	ARTIFACTS_DIR    = "artifacts"
	INVENTORY_CSV    = "tools/inventory.csv"

	CONFIG_ENV_VAR = "COLLECTOR_BUILDER_CONFIG"
)
