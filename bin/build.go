package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"

	config_proto "github.com/Ununp3ntium115/Velociraptor-scripts-sub002/config/proto"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/logging"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services/builder"
)

// Flags shared by all the pipeline commands. Unset flags fall back
// to the builder section of the config file.
type buildFlags struct {
	artifacts   *string
	include     *[]string
	platform    *string
	output      *string
	strict      *bool
	strict_set  bool
	workers     *int
	cache       *string
	catalog     *string
	retries     *int
	password    *string
	allow_empty *bool
	format      *string
}

func addBuildFlags(cmd *kingpin.CmdClause) *buildFlags {
	result := &buildFlags{}

	result.artifacts = cmd.Flag("artifacts",
		"Directory containing the artifact definitions.").String()
	result.include = cmd.Flag("include",
		"Glob over artifact names to include (may be repeated).").Strings()
	result.platform = cmd.Flag("platform",
		"Target platform: windows, linux, darwin or any.").String()
	result.output = cmd.Flag("output",
		"Directory receiving the collector and the exports.").String()
	strict := cmd.Flag("strict",
		"Fail the build when any tool can not be fetched intact.").Default("true")
	strict.Action(func(*kingpin.ParseContext) error {
		result.strict_set = true
		return nil
	})
	result.strict = strict.Bool()
	result.workers = cmd.Flag("workers",
		"Number of concurrent downloads.").Int()
	result.cache = cmd.Flag("cache",
		"Directory of the content addressed tool cache.").String()
	result.catalog = cmd.Flag("catalog",
		"Tool catalog used to resolve name only references.").String()
	result.retries = cmd.Flag("retries",
		"Download attempts per tool.").Int()
	result.password = cmd.Flag("password",
		"Encrypt the collector with this password.").String()
	result.allow_empty = cmd.Flag("allow_empty",
		"Do not fail when the artifact directory is missing.").Bool()
	result.format = cmd.Flag("format", "Output format.").
		Default("text").Enum("text", "json")

	return result
}

// Command line flags override the config file.
func (self *buildFlags) request(
	config_obj *config_proto.Config, action services.Action) *builder.Request {
	req := builder.NewRequest(config_obj, action)

	if *self.artifacts != "" {
		req.ArtifactRoot = *self.artifacts
	}
	if len(*self.include) > 0 {
		req.Include = append([]string{}, *self.include...)
	}
	if *self.platform != "" {
		req.Platform = *self.platform
	}
	if *self.output != "" {
		req.OutputPath = *self.output
	}
	if self.strict_set {
		req.Mode = services.MODE_PERMISSIVE
		if *self.strict {
			req.Mode = services.MODE_STRICT
		}
	}
	if *self.workers > 0 {
		req.Workers = *self.workers
	}
	if *self.cache != "" {
		req.CacheDirectory = *self.cache
	}
	if *self.catalog != "" {
		req.CatalogPath = *self.catalog
	}
	if *self.retries > 0 {
		req.Retries = *self.retries
	}
	if *self.password != "" {
		req.Password = *self.password
	}
	if *self.allow_empty {
		req.AllowEmpty = true
	}

	return req
}

type pipelineCommand struct {
	cmd    *kingpin.CmdClause
	action services.Action
	flags  *buildFlags
}

func newPipelineCommand(name, help string, action services.Action) *pipelineCommand {
	cmd := app.Command(name, help)
	return &pipelineCommand{
		cmd:    cmd,
		action: action,
		flags:  addBuildFlags(cmd),
	}
}

var pipeline_commands = []*pipelineCommand{
	newPipelineCommand("scan",
		"List the tools referenced by the selected artifacts.",
		services.ACTION_SCAN),
	newPipelineCommand("resolve",
		"Scan and resolve name only tools against the catalog.",
		services.ACTION_RESOLVE),
	newPipelineCommand("download",
		"Resolve and fetch every tool into the cache.",
		services.ACTION_DOWNLOAD),
	newPipelineCommand("build",
		"Download the tools and package an offline collector.",
		services.ACTION_BUILD),
	newPipelineCommand("export",
		"Write the artifact to tool mapping without downloading.",
		services.ACTION_EXPORT),
}

func doPipeline(command *pipelineCommand) {
	config_obj, err := load_config()
	kingpin.FatalIfError(err, "Unable to load config file")

	ctx, cancel := install_sig_handler()
	defer cancel()

	req := command.flags.request(config_obj, command.action)

	logger := logging.GetLogger(config_obj, &logging.ToolComponent)
	req.Progress = func(event services.ProgressEvent) {
		logger.Debug("%v %v %v %v", event.Phase, event.Item,
			event.Status, event.Message)
	}

	result := builder.NewBuilder(config_obj).Run(ctx, req)

	err = printResult(os.Stdout, *command.flags.format, result)
	kingpin.FatalIfError(err, "Writing result")

	if !result.Success {
		fmt.Fprintf(os.Stderr, "%v failed with %d errors\n",
			result.Action, len(result.Errors))
		os.Exit(1)
	}
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		for _, c := range pipeline_commands {
			if command == c.cmd.FullCommand() {
				doPipeline(c)
				return true
			}
		}
		return false
	})
}
