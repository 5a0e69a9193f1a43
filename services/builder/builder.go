// Runs the collector build pipeline:
//
//	read artifacts -> extract tool references -> map dependencies
//	-> fetch tools -> package collector -> export mapping
//
// Each action runs a prefix of the pipeline. Per item failures are
// recorded in the result and the pipeline continues. Only a missing
// input, a packaging failure or cancellation stop a build.
package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/artifacts"
	config_proto "github.com/Ununp3ntium115/Velociraptor-scripts-sub002/config/proto"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/constants"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/logging"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/networking"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services/cache"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services/catalog"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services/exporter"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services/extractor"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services/inventory"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services/mapper"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services/packager"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/utils"
)

type Request struct {
	Action services.Action

	ArtifactRoot string
	Include      []string
	Platform     string

	// Directory receiving the package and the exports.
	OutputPath string

	// services.MODE_STRICT or services.MODE_PERMISSIVE
	Mode string

	Workers        int
	Retries        int
	CacheDirectory string
	CatalogPath    string
	Password       string
	AllowEmpty     bool

	// Optional. Called from a single goroutine in event order.
	Progress services.ProgressFunc
}

// A request populated from the builder section of the config.
func NewRequest(config_obj *config_proto.Config, action services.Action) *Request {
	result := &Request{
		Action: action,
		Mode:   services.MODE_STRICT,
	}

	if config_obj == nil || config_obj.Builder == nil {
		return result
	}

	b := config_obj.Builder
	result.ArtifactRoot = b.ArtifactRoot
	result.Include = append([]string{}, b.Include...)
	result.Platform = b.Platform
	result.OutputPath = b.OutputPath
	if b.Permissive {
		result.Mode = services.MODE_PERMISSIVE
	}
	result.Workers = int(b.Workers)
	result.Retries = int(b.Retries)
	result.CacheDirectory = b.CacheDirectory
	result.CatalogPath = b.CatalogPath
	result.Password = b.Password
	result.AllowEmpty = b.AllowEmpty

	return result
}

type Builder struct {
	config_obj *config_proto.Config

	// Tests replace these.
	Clock  utils.Clock
	Client networking.HTTPClient
}

func NewBuilder(config_obj *config_proto.Config) *Builder {
	return &Builder{
		config_obj: config_obj,
		Clock:      utils.RealClock{},
	}
}

// State of one invocation.
type run struct {
	*Builder

	req      *Request
	result   *services.BuildResult
	progress *progressEmitter
	logger   *logging.LogContext

	platform    string
	fatal       bool
	definitions []*artifacts.ArtifactDefinition
	mapped      *mapper.MapResult
	manifest    *services.CollectionManifest
}

func (self *run) warn(issue services.Issue) {
	self.result.Warnings = append(self.result.Warnings, issue)
}

func (self *run) addError(issue services.Issue) {
	self.result.Errors = append(self.result.Errors, issue)
}

// Record an error that stops the pipeline.
func (self *run) abort(issue services.Issue) {
	self.fatal = true
	self.addError(issue)
	self.logger.Error("Build aborted: %v", issue.String())
}

// Stop if the caller cancelled.
func (self *run) cancelled(ctx context.Context) bool {
	if ctx.Err() == nil {
		return false
	}
	self.abort(services.Issue{
		Kind:    services.KIND_CANCELLED,
		Message: ctx.Err().Error(),
	})
	return true
}

// Run one action. The result is complete when Run returns and is not
// touched afterwards.
func (self *Builder) Run(ctx context.Context, req *Request) *services.BuildResult {
	if req.Mode == "" {
		req.Mode = services.MODE_STRICT
	}

	r := &run{
		Builder:  self,
		req:      req,
		result:   &services.BuildResult{Action: req.Action},
		progress: newProgressEmitter(req.Progress),
		logger:   logging.GetLogger(self.config_obj, &logging.ToolComponent),
	}

	r.execute(ctx)

	r.result.Success = r.success()
	r.progress.Send(services.ProgressEvent{
		Phase:  services.PHASE_DONE,
		Status: fmt.Sprintf("success=%v", r.result.Success),
		Message: fmt.Sprintf("%d artifacts, %d tools, %d warnings, %d errors",
			r.result.ArtifactCount, r.result.ToolCount,
			len(r.result.Warnings), len(r.result.Errors)),
	})
	r.progress.Close()

	return r.result
}

func (self *run) execute(ctx context.Context) {
	switch self.req.Action {
	case services.ACTION_SCAN, services.ACTION_RESOLVE, services.ACTION_DOWNLOAD,
		services.ACTION_BUILD, services.ACTION_EXPORT:
	default:
		self.abort(services.Issue{
			Kind:    services.KIND_INPUT_ERROR,
			Message: fmt.Sprintf("unknown action %q", self.req.Action),
		})
		return
	}

	platform, ok := services.NormalizePlatform(self.req.Platform)
	if !ok {
		self.abort(services.Issue{
			Kind:    services.KIND_INPUT_ERROR,
			Message: fmt.Sprintf("unknown platform %q", self.req.Platform),
		})
		return
	}
	self.platform = platform

	if !self.scan(ctx) || self.cancelled(ctx) {
		return
	}

	if !self.mapTools(ctx) || self.cancelled(ctx) {
		return
	}

	if self.req.Action.Downloads() {
		if !self.download(ctx) || self.cancelled(ctx) {
			return
		}
	}

	if self.req.Action == services.ACTION_BUILD {
		if !self.pack(ctx) {
			return
		}
	}

	if self.req.Action == services.ACTION_BUILD ||
		self.req.Action == services.ACTION_EXPORT {
		self.export()
	}
}

// Strict builds fail when any tool could not be fetched intact.
func (self *run) success() bool {
	if self.fatal {
		return false
	}
	if self.req.Mode == services.MODE_PERMISSIVE {
		return true
	}
	for _, dep := range self.result.Tools {
		if dep.Status.IsFailed() {
			return false
		}
	}
	return true
}

// Read the selected definitions and extract their tool references.
func (self *run) scan(ctx context.Context) bool {
	filter, err := artifacts.NewFilter(self.req.Include)
	if err != nil {
		self.abort(services.Issue{
			Kind:    services.KIND_INPUT_ERROR,
			Message: err.Error(),
		})
		return false
	}

	store := artifacts.NewStore(self.req.ArtifactRoot, filter)
	if self.req.ArtifactRoot == "" {
		err = utils.Wrap(utils.InvalidArgError, "artifact root not set")
	} else {
		err = store.Stat()
	}

	if err != nil {
		issue := services.Issue{
			Kind:    services.KIND_INPUT_ERROR,
			Message: err.Error(),
		}
		if !self.req.AllowEmpty {
			self.abort(issue)
			return false
		}
		self.warn(issue)
		return true
	}

	self.progress.Send(services.ProgressEvent{
		Phase: services.PHASE_SCAN, Item: store.Root(), Status: "started"})

	repository := artifacts.NewRepository()
	warnings, errs := repository.Load(ctx, store)
	self.result.Warnings = append(self.result.Warnings, warnings...)

	for _, err := range errs {
		if errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded) {
			continue
		}

		// A broken file only drops that file.
		issue := services.IssueFromError(err, services.KIND_PARSE_ERROR)
		self.warn(issue)
		self.progress.Send(services.ProgressEvent{
			Phase: services.PHASE_SCAN, Item: issue.Artifact,
			Status: "error", Message: issue.Message})
	}

	self.definitions = repository.List()
	self.result.ArtifactCount = len(self.definitions)

	for _, definition := range self.definitions {
		self.progress.Send(services.ProgressEvent{
			Phase: services.PHASE_SCAN, Item: definition.Name, Status: "loaded"})
	}

	self.logger.Info("Loaded <green>%v</> artifacts from %v",
		len(self.definitions), store.Root())
	return true
}

func (self *run) mapTools(ctx context.Context) bool {
	pairs := []mapper.ArtifactTools{}
	for _, definition := range self.definitions {
		references, issues := extractor.Extract(definition)
		self.result.Warnings = append(self.result.Warnings, issues...)
		pairs = append(pairs, mapper.ArtifactTools{
			Artifact:   definition.Name,
			References: references,
		})

		self.progress.Send(services.ProgressEvent{
			Phase:   services.PHASE_EXTRACT,
			Item:    definition.Name,
			Status:  "extracted",
			Message: fmt.Sprintf("%d tool references", len(references)),
		})
	}

	options := mapper.Options{
		TargetPlatform: self.platform,
		Resolve:        self.req.Action.Resolves(),
	}

	if options.Resolve && self.req.CatalogPath != "" {
		tool_catalog, err := catalog.LoadCatalog(self.req.CatalogPath)
		if err != nil {
			self.abort(services.Issue{
				Kind:    services.KIND_INPUT_ERROR,
				Message: fmt.Sprintf("catalog %v: %v", self.req.CatalogPath, err),
			})
			return false
		}
		options.Catalog = tool_catalog
	}

	mapped, err := mapper.Map(ctx, pairs, options)
	if err != nil {
		self.cancelled(ctx)
		return false
	}

	self.mapped = mapped
	self.result.Warnings = append(self.result.Warnings, mapped.Warnings...)
	self.result.Mapping = mapped.Mapping.Entries()
	self.result.Tools = mapped.Dependencies
	self.result.ToolCount = len(mapped.Dependencies)

	for _, dep := range mapped.Dependencies {
		self.progress.Send(services.ProgressEvent{
			Phase:  services.PHASE_MAP,
			Item:   dep.Key().String(),
			Status: dep.Status.String(),
		})
	}

	return true
}

func (self *run) download(ctx context.Context) bool {
	options := inventory.OptionsFromConfig(self.config_obj)
	if self.req.Workers > 0 {
		options.Workers = self.req.Workers
	}
	if self.req.Retries > 0 {
		options.Retries = self.req.Retries
	}

	tool_cache, err := cache.NewCache(self.req.CacheDirectory)
	if err != nil {
		self.abort(services.Issue{
			Kind:    services.KIND_INPUT_ERROR,
			Message: err.Error(),
		})
		return false
	}

	fetcher := inventory.NewFetcher(self.config_obj, tool_cache, options)
	if self.Client != nil {
		fetcher.Client = self.Client
	}
	fetcher.Clock = self.Clock

	fetched := fetcher.Fetch(ctx, self.mapped.Active, self.progress.Send)
	self.result.Errors = append(self.result.Errors, fetched.Errors...)
	self.result.Warnings = append(self.result.Warnings, fetched.Warnings...)

	return true
}

func (self *run) pack(ctx context.Context) bool {
	self.progress.Send(services.ProgressEvent{
		Phase: services.PHASE_PACKAGE, Status: "started"})

	manifest, report, err := packager.Package(ctx, self.config_obj,
		&packager.Request{
			BuildID:         services.NewBuildID(self.Clock.Now()),
			CreatedAt:       self.Clock.Now(),
			Platform:        self.platform,
			Mode:            self.req.Mode,
			OutputDirectory: self.req.OutputPath,
			Password:        self.req.Password,
			Artifacts:       self.definitions,
			Tools:           self.mapped.Dependencies,
			Mapping:         self.mapped.Mapping,
		})
	if report != nil {
		self.result.Warnings = append(self.result.Warnings, report.Warnings...)
	}

	if err != nil {
		self.abort(services.IssueFromError(err, services.KIND_PACKAGING_ERROR))
		self.progress.Send(services.ProgressEvent{
			Phase: services.PHASE_PACKAGE, Status: "failed", Message: err.Error()})
		return false
	}

	self.manifest = manifest
	self.result.Manifest = manifest
	self.result.OutputPackagePath = report.Path

	self.progress.Send(services.ProgressEvent{
		Phase: services.PHASE_PACKAGE, Item: report.Path, Status: "written"})
	return true
}

type exportFile struct {
	name string
	cb   func(out io.Writer) error
}

// Write the mapping files, the manifest and the summary next to the
// package.
func (self *run) export() {
	output := self.req.OutputPath
	rows := exporter.MappingRows(self.mapped.Mapping, self.mapped.Dependencies)

	exports := []exportFile{{
		constants.TOOL_MAPPING_JSON, func(out io.Writer) error {
			return exporter.WriteMappingJSON(out, rows)
		},
	}, {
		constants.TOOL_MAPPING_CSV, func(out io.Writer) error {
			return exporter.WriteMappingCSV(out, rows)
		},
	}}

	if self.manifest != nil {
		exports = append(exports, exportFile{
			constants.BUILD_MANIFEST_JSON, func(out io.Writer) error {
			return exporter.WriteManifestJSON(out, self.manifest)
		}})
	}

	for _, item := range exports {
		if !self.writeExport(output, item.name, item.cb) {
			return
		}
	}

	// The summary is written last so it reflects every issue.
	summary := &exporter.Summary{
		Action:      self.req.Action,
		Platform:    self.platform,
		Mode:        self.req.Mode,
		Mapping:     self.mapped.Mapping,
		Tools:       self.mapped.Dependencies,
		Warnings:    self.result.Warnings,
		Errors:      self.result.Errors,
		PackagePath: self.result.OutputPackagePath,
	}
	for _, definition := range self.definitions {
		summary.Artifacts = append(summary.Artifacts, definition.Name)
	}
	if self.manifest != nil {
		summary.BuildID = self.manifest.BuildID
	}
	if summary.PackagePath != "" {
		if info, err := os.Stat(summary.PackagePath); err == nil {
			summary.PackageSize = info.Size()
		}
	}

	if !self.writeExport(output, constants.SUMMARY_TXT, func(out io.Writer) error {
		return exporter.WriteSummary(out, summary)
	}) {
		return
	}

	abs, err := filepath.Abs(output)
	if err != nil {
		abs = output
	}
	self.result.OutputArtifactsPath = abs
}

func (self *run) writeExport(
	dir, name string, cb func(out io.Writer) error) bool {
	path, err := exporter.WriteFile(dir, name, cb)
	if err != nil {
		self.abort(services.Issue{
			Kind:    services.KIND_PACKAGING_ERROR,
			Message: fmt.Sprintf("writing %v: %v", name, err),
		})
		return false
	}

	self.progress.Send(services.ProgressEvent{
		Phase: services.PHASE_EXPORT, Item: path, Status: "written"})
	return true
}
