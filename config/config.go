package config

import (
	"fmt"

	"github.com/Velocidex/yaml/v2"

	config_proto "github.com/Ununp3ntium115/Velociraptor-scripts-sub002/config/proto"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/constants"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/utils"
)

var valid_platforms = []string{"", "any", "all", "windows", "win",
	"linux", "darwin", "macos", "osx", "mac"}

func GetDefaultConfig() *config_proto.Config {
	result := &config_proto.Config{}
	SetDefaults(result)
	return result
}

// Fill in unset fields. Explicit values are never overridden.
func SetDefaults(config_obj *config_proto.Config) {
	if config_obj.Logging == nil {
		config_obj.Logging = &config_proto.LoggingConfig{}
	}

	if config_obj.Builder == nil {
		config_obj.Builder = &config_proto.BuilderConfig{}
	}

	b := config_obj.Builder
	if b.Workers == 0 {
		b.Workers = constants.DEFAULT_WORKERS
	}

	if b.Retries == 0 {
		b.Retries = constants.DEFAULT_RETRIES
	}

	if b.RetryMinWait == 0 {
		b.RetryMinWait = uint64(constants.DEFAULT_RETRY_MIN_WAIT.Seconds())
	}

	if b.RetryMaxWait == 0 {
		b.RetryMaxWait = uint64(constants.DEFAULT_RETRY_MAX_WAIT.Seconds())
	}

	if b.DownloadTimeout == 0 {
		b.DownloadTimeout = uint64(constants.DEFAULT_DOWNLOAD_TIMEOUT.Seconds())
	}

	if b.OutputPath == "" {
		b.OutputPath = "."
	}
}

func ValidateBuilderConfig(config_obj *config_proto.Config) error {
	if config_obj.Builder == nil {
		return nil
	}

	b := config_obj.Builder
	if b.Workers > constants.MAX_WORKERS {
		return fmt.Errorf("%w: builder.workers must be between 1 and %v (got %v)",
			utils.InvalidConfigError, constants.MAX_WORKERS, b.Workers)
	}

	if !utils.InString(valid_platforms, b.Platform) {
		return fmt.Errorf("%w: builder.platform %q is not one of windows, linux, darwin",
			utils.InvalidConfigError, b.Platform)
	}

	if b.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: builder.requests_per_second can not be negative",
			utils.InvalidConfigError)
	}

	if b.RetryMaxWait < b.RetryMinWait {
		return fmt.Errorf("%w: builder.retry_max_wait is less than retry_min_wait",
			utils.InvalidConfigError)
	}

	return nil
}

func Encode(config_obj *config_proto.Config) ([]byte, error) {
	return yaml.Marshal(config_obj)
}
