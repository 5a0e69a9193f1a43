package main

import (
	"os"

	"github.com/alecthomas/kingpin/v2"

	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/config"
	config_proto "github.com/Ununp3ntium115/Velociraptor-scripts-sub002/config/proto"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/constants"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/logging"
)

type CommandHandler func(command string) bool

var (
	app = kingpin.New("collector-builder",
		"Resolve the tools used by artifacts and build offline collectors.")

	config_path = app.Flag("config", "The configuration file.").Short('c').
			Envar(constants.CONFIG_ENV_VAR).String()

	verbose_flag = app.Flag(
		"verbose", "Enable verbose logging.").Short('v').
		Default("false").Bool()

	log_file_flag = app.Flag(
		"log_file", "Also write logs to this file.").String()

	command_handlers []CommandHandler
)

// The config file is optional. Without one the builder runs on
// defaults and the command line flags.
func load_config() (*config_proto.Config, error) {
	return config.NewLoader().
		WithVerbose(*verbose_flag).
		WithFileLoader(*config_path).
		WithEnvLoader(constants.CONFIG_ENV_VAR).
		WithNullLoader().
		WithLogFile(*log_file_flag).
		LoadAndValidate()
}

func main() {
	app.HelpFlag.Short('h')
	app.UsageTemplate(kingpin.CompactUsageTemplate)
	app.Version(constants.VERSION)

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if !*verbose_flag {
		logging.SuppressConsole()
	}

	for _, command_handler := range command_handlers {
		if command_handler(command) {
			break
		}
	}
}
