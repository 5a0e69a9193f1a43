// Configuration types shared by the config loader and the packages
// that consume the loaded config. They are plain structs decoded from
// YAML.
package proto

type LoggingConfig struct {
	// A rotating JSON log file in addition to the console.
	OutputPath string `yaml:"output_path,omitempty"`
	Debug      bool   `yaml:"debug,omitempty"`
	NoColor    bool   `yaml:"no_color,omitempty"`

	// Seconds.
	MaxAge       uint64 `yaml:"max_age,omitempty"`
	RotationTime uint64 `yaml:"rotation_time,omitempty"`
}

type BuilderConfig struct {
	ArtifactRoot string   `yaml:"artifact_root,omitempty"`
	Include      []string `yaml:"include,omitempty"`
	Platform     string   `yaml:"platform,omitempty"`
	OutputPath   string   `yaml:"output_path,omitempty"`

	// Strict mode is the default.
	Permissive bool `yaml:"permissive,omitempty"`
	AllowEmpty bool `yaml:"allow_empty,omitempty"`

	Workers uint64 `yaml:"workers,omitempty"`
	Retries uint64 `yaml:"retries,omitempty"`

	// Backoff bounds and per download timeout in seconds.
	RetryMinWait    uint64 `yaml:"retry_min_wait,omitempty"`
	RetryMaxWait    uint64 `yaml:"retry_max_wait,omitempty"`
	DownloadTimeout uint64 `yaml:"download_timeout,omitempty"`

	// 0 means unlimited.
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`

	CacheDirectory string `yaml:"cache_directory,omitempty"`
	CatalogPath    string `yaml:"catalog_path,omitempty"`

	// When set the collector archive is wrapped in an encrypted zip.
	Password string `yaml:"password,omitempty"`

	// Resolve tools declared only with a github project through
	// the GitHub releases API.
	DisableGithub bool   `yaml:"disable_github,omitempty"`
	GithubAPIURL  string `yaml:"github_api_url,omitempty"`
}

type Config struct {
	Builder *BuilderConfig `yaml:"builder,omitempty"`
	Logging *LoggingConfig `yaml:"logging,omitempty"`

	Verbose bool `yaml:"-"`
}
