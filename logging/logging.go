package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	config_proto "github.com/Ununp3ntium115/Velociraptor-scripts-sub002/config/proto"
)

var (
	GenericComponent  = "Generic"
	ToolComponent     = "Tool"
	FetcherComponent  = "Fetcher"
	PackagerComponent = "Packager"

	mu      sync.Mutex
	manager *LogManager

	// Survives InitLogging so a reloaded config stays quiet.
	suppress_console bool

	// Tests capture all log lines in memory.
	memory_logs []string
	memory_mu   sync.Mutex
)

type LogContext struct {
	*logrus.Logger
	component string
}

func (self *LogContext) Debug(format string, v ...interface{}) {
	self.Logger.Debug(fmt.Sprintf(format, v...))
}

func (self *LogContext) Info(format string, v ...interface{}) {
	self.Logger.Info(fmt.Sprintf(format, v...))
}

func (self *LogContext) Warn(format string, v ...interface{}) {
	self.Logger.Warn(fmt.Sprintf(format, v...))
}

func (self *LogContext) Error(format string, v ...interface{}) {
	self.Logger.Error(fmt.Sprintf(format, v...))
}

func (self *LogContext) WithFields(fields logrus.Fields) *logrus.Entry {
	return self.Logger.WithFields(fields).WithField("component", self.component)
}

// The manager owns one logrus logger per component. All the loggers
// share the same hooks.
type LogManager struct {
	mu       sync.Mutex
	contexts map[*string]*LogContext
	hooks    []logrus.Hook
	level    logrus.Level
	out      io.Writer
}

func (self *LogManager) GetLogger(component *string) *LogContext {
	self.mu.Lock()
	defer self.mu.Unlock()

	ctx, pres := self.contexts[component]
	if pres {
		return ctx
	}

	logger := logrus.New()
	logger.Out = self.out
	logger.Level = self.level
	logger.Formatter = &Formatter{component: *component}
	for _, h := range self.hooks {
		logger.AddHook(h)
	}

	ctx = &LogContext{Logger: logger, component: *component}
	self.contexts[component] = ctx
	return ctx
}

func (self *LogManager) AddHook(hook logrus.Hook) {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.hooks = append(self.hooks, hook)
	for _, ctx := range self.contexts {
		ctx.AddHook(hook)
	}
}

func (self *LogManager) SetLevel(level logrus.Level) {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.level = level
	for _, ctx := range self.contexts {
		ctx.SetLevel(level)
	}
}

func newLogManager(config_obj *config_proto.Config) *LogManager {
	level := logrus.InfoLevel
	if config_obj != nil && (config_obj.Verbose ||
		(config_obj.Logging != nil && config_obj.Logging.Debug)) {
		level = logrus.DebugLevel
	}

	var out io.Writer = os.Stderr
	if suppress_console {
		out = io.Discard
	}

	return &LogManager{
		contexts: make(map[*string]*LogContext),
		hooks:    []logrus.Hook{&memoryHook{}},
		level:    level,
		out:      out,
	}
}

func getManager(config_obj *config_proto.Config) *LogManager {
	mu.Lock()
	defer mu.Unlock()

	if manager == nil {
		manager = newLogManager(config_obj)
	}
	return manager
}

func GetLogger(config_obj *config_proto.Config, component *string) *LogContext {
	return getManager(config_obj).GetLogger(component)
}

// Reconfigure logging from a freshly loaded config. Existing loggers
// are replaced.
func InitLogging(config_obj *config_proto.Config) error {
	mu.Lock()
	manager = newLogManager(config_obj)
	mu.Unlock()

	if config_obj == nil || config_obj.Logging == nil {
		return nil
	}

	if config_obj.Logging.NoColor {
		SetNoColor(true)
	}

	if config_obj.Logging.OutputPath != "" {
		return AddLogFile(config_obj, config_obj.Logging.OutputPath)
	}
	return nil
}

// Silence console output. Hooks (log files, memory logs) still fire.
func SuppressConsole() {
	mu.Lock()
	suppress_console = true
	mu.Unlock()

	m := getManager(nil)
	m.mu.Lock()
	defer m.mu.Unlock()

	m.out = io.Discard
	for _, ctx := range m.contexts {
		ctx.SetOutput(io.Discard)
	}
}

// Log before any config is available.
func Prelog(format string, v ...interface{}) {
	GetLogger(nil, &GenericComponent).Info(format, v...)
}

type memoryHook struct{}

func (self *memoryHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (self *memoryHook) Fire(entry *logrus.Entry) error {
	memory_mu.Lock()
	defer memory_mu.Unlock()

	memory_logs = append(memory_logs, fmt.Sprintf("%s: %s",
		entry.Level.String(), clearTag(entry.Message)))
	return nil
}

func GetMemoryLogs() []string {
	memory_mu.Lock()
	defer memory_mu.Unlock()

	result := make([]string, len(memory_logs))
	copy(result, memory_logs)
	return result
}

func ClearMemoryLogs() {
	memory_mu.Lock()
	defer memory_mu.Unlock()

	memory_logs = nil
}
