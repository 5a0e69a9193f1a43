package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Velocidex/yaml/v2"
	"github.com/alecthomas/kingpin/v2"
	"github.com/olekukonko/tablewriter"

	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services/catalog"
)

var (
	catalog_command      = app.Command("catalog", "Inspect the tool catalog")
	catalog_command_show = catalog_command.Command("show", "Print the parsed catalog")
	catalog_show_path    = catalog_command_show.Flag("catalog",
		"Path to the catalog (default from the config file).").String()
	catalog_show_name = catalog_command_show.Arg("name",
		"Only show tools with this name.").String()
	catalog_show_format = catalog_command_show.Flag("format", "Output format.").
				Default("text").Enum("text", "yaml")
)

func doCatalogShow() error {
	config_obj, err := load_config()
	if err != nil {
		return err
	}

	path := *catalog_show_path
	if path == "" && config_obj.Builder != nil {
		path = config_obj.Builder.CatalogPath
	}
	if path == "" {
		return fmt.Errorf("no catalog given: use --catalog or builder.catalog_path")
	}

	tool_catalog, err := catalog.LoadCatalog(path)
	if err != nil {
		return err
	}

	entries := []*catalog.Entry{}
	for _, entry := range tool_catalog.Tools {
		if *catalog_show_name == "" ||
			strings.EqualFold(entry.Name, *catalog_show_name) {
			entries = append(entries, entry)
		}
	}

	return printCatalog(os.Stdout, *catalog_show_format, entries)
}

func printCatalog(out io.Writer, format string, entries []*catalog.Entry) error {
	if format == "yaml" {
		serialized, err := yaml.Marshal(&catalog.Catalog{Tools: entries})
		if err != nil {
			return err
		}
		_, err = out.Write(serialized)
		return err
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Name", "Platform", "Version", "Source", "Hash"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	for _, entry := range entries {
		source := entry.URL
		if source == "" {
			source = "github:" + entry.GithubProject
		}

		hash := "unverified"
		if entry.ExpectedHash != "" {
			hash = entry.ExpectedHash
			if len(hash) > 16 {
				hash = hash[:16] + "..."
			}
		}
		table.Append([]string{entry.Name, entry.Platform, entry.Version,
			source, hash})
	}
	table.Render()
	return nil
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case catalog_command_show.FullCommand():
			kingpin.FatalIfError(doCatalogShow(), "catalog show")

		default:
			return false
		}
		return true
	})
}
