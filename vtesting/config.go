package vtesting

import (
	"path/filepath"
	"testing"

	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/config"
	config_proto "github.com/Ununp3ntium115/Velociraptor-scripts-sub002/config/proto"
)

// A config with defaults applied and all writable locations inside
// the test's temp directory. Retry waits are zero so failing
// downloads do not slow the tests down.
func GetTestConfig(t *testing.T) *config_proto.Config {
	dir := t.TempDir()

	config_obj := config.GetDefaultConfig()
	config_obj.Logging.NoColor = true

	b := config_obj.Builder
	b.OutputPath = filepath.Join(dir, "output")
	b.CacheDirectory = filepath.Join(dir, "cache")
	b.RetryMinWait = 0
	b.RetryMaxWait = 0
	b.DisableGithub = true

	return config_obj
}
