package supervisor

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshuarubin/moldock-supervisor/pkg/stopsignal"
)

const (
	DefaultWorkerModule         = "moldockpipe.cli"
	DefaultWatcherModule        = "moldockpipe.progress_watcher"
	DefaultWatcherInterval      = 500 * time.Millisecond
	DefaultWatcherGracePoll     = 100 * time.Millisecond
	DefaultWatcherGraceAttempts = 20
	DefaultOutputLimit          = 4 << 20 // bytes of worker output kept per job
	DefaultOutputWaitDelay      = time.Second
)

// DefaultPythonCandidates are looked up in PATH when no interpreter is
// configured
var DefaultPythonCandidates = []string{"python3", "python"}

// CleanupHook is told about every best effort cleanup step, err is nil when
// the step succeeded
type CleanupHook func(action string, err error)

// Config contains the settings of a Supervisor
type Config struct {
	Python               string        `mapstructure:"python"`         // interpreter used when a request doesn't name one
	WorkerModule         string        `mapstructure:"worker_module"`  // run with "python -m"
	WatcherModule        string        `mapstructure:"watcher_module"` // run with "python -m"
	WatcherInterval      time.Duration `mapstructure:"watcher_interval"`
	WatcherGracePoll     time.Duration `mapstructure:"watcher_grace_poll"`
	WatcherGraceAttempts int           `mapstructure:"watcher_grace_attempts"`
	CompletedExitCodes   []int         `mapstructure:"completed_exit_codes"`
	RepoRoot             string        `mapstructure:"repo_root"`         // prepended to PYTHONPATH when set
	OutputLimit          int           `mapstructure:"output_limit"`      // most recent bytes of output kept per job, 0 keeps all
	OutputWaitDelay      time.Duration `mapstructure:"output_wait_delay"` // how long output is drained after the worker exited
	Env                  []string      `mapstructure:"-"`                 // additional "key=value" entries for both processes

	CleanupHook CleanupHook `mapstructure:"-"`
}

// Defaults returns a Config with every default applied
func Defaults() Config {
	return Config{
		WorkerModule:         DefaultWorkerModule,
		WatcherModule:        DefaultWatcherModule,
		WatcherInterval:      DefaultWatcherInterval,
		WatcherGracePoll:     DefaultWatcherGracePoll,
		WatcherGraceAttempts: DefaultWatcherGraceAttempts,
		CompletedExitCodes:   append([]int(nil), stopsignal.DefaultCompletedExitCodes...),
		OutputLimit:          DefaultOutputLimit,
		OutputWaitDelay:      DefaultOutputWaitDelay,
	}
}

// Flags registers the cli flags that override c
func (c *Config) Flags(cmd *cobra.Command) {
	d := Defaults()
	cmd.Flags().StringVar(&c.Python, "python", "", "python interpreter, looked up in PATH when empty")
	cmd.Flags().StringVar(&c.WorkerModule, "worker-module", d.WorkerModule, "python module run as the worker")
	cmd.Flags().StringVar(&c.WatcherModule, "watcher-module", d.WatcherModule, "python module run as the progress watcher")
	cmd.Flags().DurationVar(&c.WatcherInterval, "watcher-interval", d.WatcherInterval, "how often the watcher refreshes progress")
	cmd.Flags().DurationVar(&c.WatcherGracePoll, "watcher-grace-poll", d.WatcherGracePoll, "how often to check whether the watcher stopped after the worker exited")
	cmd.Flags().IntVar(&c.WatcherGraceAttempts, "watcher-grace-attempts", d.WatcherGraceAttempts, "checks before the watcher is killed")
	cmd.Flags().IntSliceVar(&c.CompletedExitCodes, "completed-exit-codes", d.CompletedExitCodes, "worker exit codes reported to the watcher as completed")
	cmd.Flags().StringVar(&c.RepoRoot, "repo-root", "", "moldockpipe checkout added to PYTHONPATH, searched for from the working directory when empty")
	cmd.Flags().IntVar(&c.OutputLimit, "output-limit", d.OutputLimit, "bytes of worker output kept per job, 0 keeps everything")
	cmd.Flags().DurationVar(&c.OutputWaitDelay, "output-wait-delay", d.OutputWaitDelay, "how long to keep reading output held open by processes the worker left behind")
}

var (
	// ErrWorkerModuleRequired is returned by New if WorkerModule is empty
	ErrWorkerModuleRequired = errors.New("worker module is required")

	// ErrWatcherModuleRequired is returned by New if WatcherModule is empty
	ErrWatcherModuleRequired = errors.New("watcher module is required")

	// ErrInvalidGrace is returned by New if the watcher grace settings are
	// negative
	ErrInvalidGrace = errors.New("watcher grace poll and attempts can not be negative")

	// ErrInvalidInterval is returned by New if WatcherInterval is not
	// positive
	ErrInvalidInterval = errors.New("watcher interval must be positive")

	// ErrInvalidOutput is returned by New if OutputLimit or OutputWaitDelay
	// is negative
	ErrInvalidOutput = errors.New("output limit and wait delay can not be negative")
)

func (c *Config) validate() error {
	if c.WorkerModule == "" {
		return ErrWorkerModuleRequired
	}

	if c.WatcherModule == "" {
		return ErrWatcherModuleRequired
	}

	if c.WatcherGracePoll < 0 || c.WatcherGraceAttempts < 0 {
		return ErrInvalidGrace
	}

	if c.WatcherInterval <= 0 {
		return ErrInvalidInterval
	}

	if c.OutputLimit < 0 || c.OutputWaitDelay < 0 {
		return ErrInvalidOutput
	}

	return nil
}

// copy returns a deep copy of Config
func (c *Config) copy() *Config {
	ret := *c

	ret.CompletedExitCodes = make([]int, len(c.CompletedExitCodes))
	copy(ret.CompletedExitCodes, c.CompletedExitCodes)

	ret.Env = make([]string, len(c.Env))
	copy(ret.Env, c.Env)

	return &ret
}
