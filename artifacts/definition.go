package artifacts

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Velocidex/yaml/v2"
	errors "github.com/pkg/errors"

	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services"
)

var (
	artifactNameRegex = regexp.MustCompile("^[a-zA-Z0-9_.]+$")
)

type Parameter struct {
	Name        string `yaml:"name"`
	Default     string `yaml:"default,omitempty"`
	Type        string `yaml:"type,omitempty"`
	Description string `yaml:"description,omitempty"`

	// Accepted so real artifacts load, otherwise unused.
	FriendlyName    string      `yaml:"friendly_name,omitempty"`
	ValidatingRegex string      `yaml:"validating_regex,omitempty"`
	Choices         []string    `yaml:"choices,omitempty"`
	ArtifactType    string      `yaml:"artifact_type,omitempty"`
	Hidden          bool        `yaml:"hidden,omitempty"`
	Extra           interface{} `yaml:"extra,omitempty"`
}

type Source struct {
	Name         string   `yaml:"name,omitempty"`
	Description  string   `yaml:"description,omitempty"`
	Precondition string   `yaml:"precondition,omitempty"`
	Query        string   `yaml:"query,omitempty"`
	Queries      []string `yaml:"queries,omitempty"`

	Notebook interface{} `yaml:"notebook,omitempty"`
}

// The tools block of an artifact definition.
type Tool struct {
	Name             string `yaml:"name"`
	URL              string `yaml:"url,omitempty"`
	ExpectedHash     string `yaml:"expected_hash,omitempty"`
	Version          string `yaml:"version,omitempty"`
	Platform         string `yaml:"platform,omitempty"`
	Filename         string `yaml:"filename,omitempty"`
	GithubProject    string `yaml:"github_project,omitempty"`
	GithubAssetRegex string `yaml:"github_asset_regex,omitempty"`

	ServeLocally  bool   `yaml:"serve_locally,omitempty"`
	ServeURL      string `yaml:"serve_url,omitempty"`
	AdminOverride bool   `yaml:"admin_override,omitempty"`
}

type ArtifactDefinition struct {
	Name        string      `yaml:"name"`
	Type        string      `yaml:"type,omitempty"`
	Description string      `yaml:"description,omitempty"`
	Parameters  []Parameter `yaml:"parameters,omitempty"`
	Sources     []Source    `yaml:"sources,omitempty"`
	Tools       []Tool      `yaml:"tools,omitempty"`

	Author              string      `yaml:"author,omitempty"`
	Reference           interface{} `yaml:"reference,omitempty"`
	References          interface{} `yaml:"references,omitempty"`
	Precondition        string      `yaml:"precondition,omitempty"`
	RequiredPermissions []string    `yaml:"required_permissions,omitempty"`
	ImpliedPermissions  []string    `yaml:"implied_permissions,omitempty"`
	Imports             []string    `yaml:"imports,omitempty"`
	Export              string      `yaml:"export,omitempty"`
	Aliases             []string    `yaml:"aliases,omitempty"`
	ColumnTypes         interface{} `yaml:"column_types,omitempty"`
	Reports             interface{} `yaml:"reports,omitempty"`
	Resources           interface{} `yaml:"resources,omitempty"`

	RawPath string `yaml:"-"`
	Raw     string `yaml:"-"`
}

// The default value of a parameter.
func (self *ArtifactDefinition) ParameterDefault(name string) (string, bool) {
	for _, p := range self.Parameters {
		if p.Name == name {
			return p.Default, true
		}
	}
	return "", false
}

// Parse and validate a single artifact definition.
func Parse(data []byte) (*ArtifactDefinition, error) {
	artifact := &ArtifactDefinition{}
	err := yaml.UnmarshalStrict(data, artifact)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	artifact.Raw = string(data)

	if artifact.Name == "" {
		return nil, errors.New("No artifact name")
	}

	if !artifactNameRegex.MatchString(artifact.Name) {
		return nil, errors.Errorf("Invalid artifact name %q", artifact.Name)
	}

	// Normalize the type.
	artifact.Type = strings.ToUpper(artifact.Type)
	switch artifact.Type {
	case "":
		// By default use the client type.
		artifact.Type = "CLIENT"

	case "CLIENT", "CLIENT_EVENT", "SERVER", "SERVER_EVENT", "INTERNAL":

	default:
		return nil, errors.Errorf("Artifact type %q invalid.", artifact.Type)
	}

	for idx, p := range artifact.Parameters {
		if p.Name == "" {
			return nil, errors.Errorf("Parameter %d has no name", idx)
		}
	}

	for idx, t := range artifact.Tools {
		if strings.TrimSpace(t.Name) == "" {
			return nil, errors.Errorf("Tool %d has no name", idx)
		}
	}

	return artifact, nil
}

// A file that could not be loaded. The scan continues past it.
type ParseError struct {
	Path string
	Err  error
}

func (self *ParseError) Error() string {
	return fmt.Sprintf("%v: %v", self.Path, self.Err)
}

func (self *ParseError) Unwrap() error {
	return self.Err
}

func (self *ParseError) Issue() services.Issue {
	return services.Issue{
		Kind:    services.KIND_PARSE_ERROR,
		Message: self.Error(),
	}
}
