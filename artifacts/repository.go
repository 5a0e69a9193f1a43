package artifacts

import (
	"context"
	"fmt"
	"sync"

	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services"
)

// Holds the definitions selected for one build keyed by name.
type Repository struct {
	mu    sync.Mutex
	data  map[string]*ArtifactDefinition
	order []string
}

func NewRepository() *Repository {
	return &Repository{data: make(map[string]*ArtifactDefinition)}
}

// Load every definition from the store. Files that fail to parse are
// returned as errors and skipped. Names defined more than once keep
// the last read definition and produce a warning.
func (self *Repository) Load(ctx context.Context, store *Store) (
	warnings []services.Issue, errs []error) {

	for item := range store.Definitions(ctx) {
		if item.Err != nil {
			errs = append(errs, item.Err)
			continue
		}

		prior, replaced := self.Set(item.Definition)
		if replaced {
			warnings = append(warnings, services.Issue{
				Kind:     services.KIND_DUPLICATE_ARTIFACT,
				Artifact: item.Definition.Name,
				Message: fmt.Sprintf("%v is defined in %v and %v, using %v",
					item.Definition.Name, prior.RawPath,
					item.Definition.RawPath, item.Definition.RawPath),
			})
		}
	}

	if ctx.Err() != nil {
		errs = append(errs, ctx.Err())
	}

	return warnings, errs
}

// Add or replace a definition. Returns the replaced definition.
func (self *Repository) Set(
	definition *ArtifactDefinition) (*ArtifactDefinition, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()

	prior, pres := self.data[definition.Name]
	if !pres {
		self.order = append(self.order, definition.Name)
	}
	self.data[definition.Name] = definition
	return prior, pres
}

func (self *Repository) Get(name string) (*ArtifactDefinition, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()

	res, pres := self.data[name]
	return res, pres
}

// Names in order of first appearance.
func (self *Repository) Names() []string {
	self.mu.Lock()
	defer self.mu.Unlock()

	return append([]string{}, self.order...)
}

// Definitions in order of first appearance.
func (self *Repository) List() []*ArtifactDefinition {
	self.mu.Lock()
	defer self.mu.Unlock()

	result := make([]*ArtifactDefinition, 0, len(self.order))
	for _, name := range self.order {
		result = append(result, self.data[name])
	}
	return result
}

func (self *Repository) Len() int {
	self.mu.Lock()
	defer self.mu.Unlock()

	return len(self.order)
}
