package artifacts

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	errors "github.com/pkg/errors"

	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/utils"
)

// One item of a store scan: either a definition or the error that
// prevented a file from loading.
type LoadResult struct {
	Definition *ArtifactDefinition
	Err        error
}

// A directory tree of artifact definition files.
type Store struct {
	root   string
	filter *Filter
}

func NewStore(root string, filter *Filter) *Store {
	return &Store{root: filepath.Clean(root), filter: filter}
}

func (self *Store) Root() string {
	return self.root
}

// Check the root exists and is a directory.
func (self *Store) Stat() error {
	info, err := os.Stat(self.root)
	if err != nil {
		return utils.Wrap(utils.NotFoundError, "artifact root %v: %v", self.root, err)
	}
	if !info.IsDir() {
		return utils.Wrap(utils.InvalidArgError,
			"artifact root %v is not a directory", self.root)
	}
	return nil
}

// Lazily walk the store in lexical order. Each call starts a new
// scan. Definitions that do not match the filter are dropped. The
// channel is closed when the walk completes or ctx is done.
func (self *Store) Definitions(ctx context.Context) <-chan LoadResult {
	output_chan := make(chan LoadResult)

	go func() {
		defer close(output_chan)

		send := func(item LoadResult) bool {
			select {
			case <-ctx.Done():
				return false
			case output_chan <- item:
				return true
			}
		}

		_ = filepath.WalkDir(self.root,
			func(file_path string, d fs.DirEntry, err error) error {
				if err != nil {
					if !send(LoadResult{Err: &ParseError{
						Path: file_path, Err: errors.WithStack(err)}}) {
						return context.Canceled
					}
					if d != nil && d.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}

				if d.IsDir() || !isDefinitionFile(d.Name()) {
					return nil
				}

				definition, err := self.load(file_path)
				if err != nil {
					if !send(LoadResult{Err: err}) {
						return context.Canceled
					}
					return nil
				}

				if !self.filter.Match(definition.Name) {
					return nil
				}

				if !send(LoadResult{Definition: definition}) {
					return context.Canceled
				}
				return nil
			})
	}()

	return output_chan
}

func (self *Store) load(file_path string) (*ArtifactDefinition, error) {
	data, err := os.ReadFile(file_path)
	if err != nil {
		return nil, &ParseError{Path: file_path, Err: errors.WithStack(err)}
	}

	definition, err := Parse(data)
	if err != nil {
		return nil, &ParseError{Path: file_path, Err: err}
	}
	definition.RawPath = file_path

	return definition, nil
}

func isDefinitionFile(name string) bool {
	name = strings.ToLower(name)
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}
