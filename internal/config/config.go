package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joshuarubin/moldock-supervisor/pkg/launcher"
	"github.com/joshuarubin/moldock-supervisor/pkg/project"
	"github.com/joshuarubin/moldock-supervisor/pkg/supervisor"
)

// EnvPrefix is the prefix of environment variables that override settings,
// e.g. MOLDOCK_PYTHON
const EnvPrefix = "MOLDOCK"

// Log configures the process logger
type Log struct {
	Format string `mapstructure:"log_format"` // "text" or "json"
	Level  string `mapstructure:"log_level"`
}

// Config is everything serve needs beyond the listener
type Config struct {
	Supervisor  supervisor.Config `mapstructure:",squash"`
	Log         Log               `mapstructure:",squash"`
	ProjectDirs []string          `mapstructure:"project_dirs"` // searched for projects in addition to the defaults
	Env         map[string]string `mapstructure:"env"`          // passed to the worker and the watcher
}

// keys that can be set by flag, environment or config file. Flag names are
// the keys with "-" in place of "_".
var keys = []string{
	"python",
	"worker_module",
	"watcher_module",
	"watcher_interval",
	"watcher_grace_poll",
	"watcher_grace_attempts",
	"completed_exit_codes",
	"repo_root",
	"output_limit",
	"output_wait_delay",
	"project_dirs",
	"log_format",
	"log_level",
}

// Loader layers flags over environment variables over a config file over
// defaults
type Loader struct {
	v    *viper.Viper
	file string

	// flags register into these, the values are read back through v
	flags    supervisor.Config
	log      Log
	projects []string
}

// NewLoader returns a Loader with its own viper instance
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

// Flags registers the configuration flags on cmd and binds them
func (l *Loader) Flags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&l.file, "config", "", "config file (yaml, json or toml), also read from $"+EnvPrefix+"_CONFIG")
	cmd.Flags().StringVar(&l.log.Format, "log-format", "text", "log format, text or json")
	cmd.Flags().StringVar(&l.log.Level, "log-level", "info", "log level, debug, info, warn or error")
	cmd.Flags().StringSliceVar(&l.projects, "project-dirs", nil, "additional directories to search for projects")
	l.flags.Flags(cmd)

	for _, key := range keys {
		if f := cmd.Flags().Lookup(strings.ReplaceAll(key, "_", "-")); f != nil {
			_ = l.v.BindPFlag(key, f)
		}
	}
}

// Load reads the configuration
func (l *Loader) Load() (*Config, error) {
	file := l.file
	if file == "" {
		file = os.Getenv(EnvPrefix + "_CONFIG")
	}

	if file != "" {
		l.v.SetConfigFile(file)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		slog.Debug("loaded config file", "file", l.v.ConfigFileUsed())
	}

	cfg := Config{
		Supervisor: supervisor.Defaults(),
		Log:        Log{Format: "text", Level: "info"},
	}

	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}

	cfg.Supervisor.Env = cfg.environ()

	return &cfg, nil
}

// environ converts Env to "KEY=value" entries. Keys are upper cased, since
// viper lower cases them, and values starting with $ are expanded.
func (c *Config) environ() []string {
	env := make([]string, 0, len(c.Env))
	for k, v := range c.Env {
		if strings.HasPrefix(v, "$") {
			v = os.ExpandEnv(v)
		}
		env = append(env, strings.ToUpper(k)+"="+v)
	}
	return env
}

// RepoRoot returns the configured repo root, or the one found from the
// working directory
func (c *Config) RepoRoot() string {
	if c.Supervisor.RepoRoot != "" {
		return c.Supervisor.RepoRoot
	}

	if wd, err := os.Getwd(); err == nil {
		if root, ok := launcher.FindRepoRoot(wd); ok {
			return root
		}
	}

	return ""
}

// Sources returns the directories that are searched for projects
func (c *Config) Sources() []project.Source {
	ret := project.DefaultSources(c.RepoRoot())
	for _, dir := range c.ProjectDirs {
		ret = append(ret, project.Source{
			Dir:   dir,
			Label: filepath.Base(dir),
		})
	}
	return ret
}

// Logger returns a logger writing to w in the configured format and level
func (l *Log) Logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", l.Level, err)
	}

	opts := slog.HandlerOptions{Level: level}

	switch strings.ToLower(l.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, &opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, &opts)), nil
	}

	return nil, fmt.Errorf("invalid log format %q", l.Format)
}
