package config

import (
	"fmt"
	"os"

	"github.com/Velocidex/yaml/v2"
	"github.com/go-errors/errors"

	config_proto "github.com/Ununp3ntium115/Velociraptor-scripts-sub002/config/proto"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/logging"
)

// A hard error causes the loader to stop immediately.
type HardError struct {
	Err error
}

func (self HardError) Error() string {
	return self.Err.Error()
}

func (self HardError) Unwrap() error {
	return self.Err
}

type loaderFunction struct {
	name        string
	loader_func func(self *Loader) (*config_proto.Config, error)
}

type configMutator struct {
	name                string
	config_mutator_func func(self *config_proto.Config) error
}

type validatorFunction struct {
	name      string
	validator func(self *Loader, config_obj *config_proto.Config) error
}

type Loader struct {
	verbose bool

	loaders         []loaderFunction
	config_mutators []configMutator
	validators      []validatorFunction

	logger *logging.LogContext
}

func NewLoader() *Loader {
	return &Loader{}
}

func (self *Loader) WithLogFile(filename string) *Loader {
	if filename == "" {
		return self
	}

	self = self.Copy()
	self.validators = append(self.validators, validatorFunction{
		name: "WithLogFile",
		validator: func(self *Loader, config_obj *config_proto.Config) error {
			err := logging.AddLogFile(config_obj, filename)
			if err != nil {
				return HardError{err}
			}
			return nil
		}})
	return self
}

func (self *Loader) WithVerbose(verbose bool) *Loader {
	self = self.Copy()
	self.verbose = verbose
	return self
}

func (self *Loader) WithConfigMutator(
	name string,
	mutator func(self *config_proto.Config) error) *Loader {
	self = self.Copy()
	self.config_mutators = append(self.config_mutators, configMutator{
		name:                name,
		config_mutator_func: mutator,
	})
	return self
}

func (self *Loader) WithCustomValidator(
	name string,
	validator func(config_obj *config_proto.Config) error) *Loader {
	self = self.Copy()
	self.validators = append(self.validators, validatorFunction{
		name: name,
		validator: func(self *Loader, config_obj *config_proto.Config) error {
			return validator(config_obj)
		}})
	return self
}

func (self *Loader) WithNullLoader() *Loader {
	self = self.Copy()
	self.loaders = append(self.loaders, loaderFunction{
		name: "WithNullLoader",
		loader_func: func(self *Loader) (*config_proto.Config, error) {
			self.Debug("Setting empty config")
			return &config_proto.Config{}, nil
		}})
	return self
}

func (self *Loader) WithFileLoader(filename string) *Loader {
	if filename != "" {
		self = self.Copy()
		self.loaders = append(self.loaders, loaderFunction{
			name: "WithFileLoader",
			loader_func: func(self *Loader) (*config_proto.Config, error) {
				self.Log("Loading config from file %v", filename)
				result, err := read_config_from_file(filename)
				if err != nil {
					// If a filename is specified but it
					// does not exist or invalid stop
					// searching immediately.
					return result, HardError{err}
				}
				return result, nil
			}})
	}

	return self
}

func (self *Loader) WithLiteralLoader(serialized []byte) *Loader {
	if len(serialized) > 0 {
		self = self.Copy()
		self.loaders = append(self.loaders, loaderFunction{
			name: "WithLiteralLoader",
			loader_func: func(self *Loader) (*config_proto.Config, error) {
				self.Debug("Loading constant config")
				result := &config_proto.Config{}
				err := yaml.UnmarshalStrict(serialized, result)
				if err != nil {
					return nil, HardError{errors.Wrap(err, 0)}
				}
				return result, nil
			}})
	}

	return self
}

func (self *Loader) WithEnvLoader(env_var string) *Loader {
	self = self.Copy()
	self.loaders = append(self.loaders, loaderFunction{
		name: "WithEnvLoader",
		loader_func: func(self *Loader) (*config_proto.Config, error) {
			env_config := os.Getenv(env_var)
			if env_config != "" {
				self.Log("Loading config from env %v (%v)", env_var, env_config)
				return read_config_from_file(env_config)
			}
			return nil, fmt.Errorf("Env var %v is not set", env_var)
		}})

	return self
}

func (self *Loader) Copy() *Loader {
	return &Loader{
		verbose:         self.verbose,
		logger:          self.logger,
		loaders:         append([]loaderFunction{}, self.loaders...),
		validators:      append([]validatorFunction{}, self.validators...),
		config_mutators: append([]configMutator{}, self.config_mutators...),
	}
}

func (self *Loader) Log(format string, v ...interface{}) {
	if self.logger == nil {
		logging.Prelog(format, v...)
	} else {
		self.logger.Info(format, v...)
	}
}

// Loader chatter that is only interesting with --verbose.
func (self *Loader) Debug(format string, v ...interface{}) {
	if self.verbose {
		self.Log(format, v...)
	}
}

func (self *Loader) Validate(config_obj *config_proto.Config) error {
	var err error

	config_obj.Verbose = self.verbose

	for _, mutator := range self.config_mutators {
		err = mutator.config_mutator_func(config_obj)
		if err != nil {
			return err
		}
	}

	SetDefaults(config_obj)

	// Logging is not required so if it fails we dont care. Log
	// files requested on the command line are added by a validator
	// and are fatal.
	_ = logging.InitLogging(config_obj)

	self.logger = logging.GetLogger(config_obj, &logging.ToolComponent)

	for _, validator := range self.validators {
		err = validator.validator(self, config_obj)
		if err != nil {
			self.Log("%v", err)
			return err
		}
	}

	return ValidateBuilderConfig(config_obj)
}

func (self *Loader) LoadAndValidate() (*config_proto.Config, error) {
	for _, loader := range self.loaders {
		result, err := loader.loader_func(self)
		if err == nil {
			return result, self.Validate(result)
		}

		// Stop on hard errors.
		_, ok := err.(HardError)
		if ok {
			return nil, err
		}
		self.Debug("%v", err)
	}
	return nil, errors.New("Unable to load config from any source.")
}

func read_config_from_file(filename string) (*config_proto.Config, error) {
	result := &config_proto.Config{}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	err = yaml.UnmarshalStrict(data, result)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	return result, nil
}
