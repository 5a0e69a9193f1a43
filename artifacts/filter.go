package artifacts

import (
	"strings"

	"github.com/gobwas/glob"
	errors "github.com/pkg/errors"
)

type matcher func(name string) bool

// Selects artifacts by name. Patterns with glob metacharacters are
// globs (Windows.Sysinternals.*), anything else is a name prefix.
// An empty filter selects everything.
type Filter struct {
	patterns []string
	matchers []matcher
}

func NewFilter(patterns []string) (*Filter, error) {
	result := &Filter{}
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}

		result.patterns = append(result.patterns, pattern)

		if !strings.ContainsAny(pattern, "*?[{") {
			prefix := pattern
			result.matchers = append(result.matchers, func(name string) bool {
				return strings.HasPrefix(name, prefix)
			})
			continue
		}

		compiled, err := glob.Compile(pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid inclusion pattern %q", pattern)
		}
		result.matchers = append(result.matchers, compiled.Match)
	}
	return result, nil
}

func (self *Filter) Patterns() []string {
	if self == nil {
		return nil
	}
	return append([]string{}, self.patterns...)
}

func (self *Filter) Match(name string) bool {
	if self == nil || len(self.matchers) == 0 {
		return true
	}

	for _, m := range self.matchers {
		if m(name) {
			return true
		}
	}
	return false
}
