// Package cmd provides the command-line interface of kairos.
package cmd

import (
	"errors"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/kairos-sim/kairos/config"
)

const defaultEnvFile = ".env"

type rootOptions struct {
	fs         afero.Fs
	configPath string
	envFiles   []string
	logLevel   string
	backend    string
	resolution string
	seed       int64
}

// NewRootCommand builds the kairos command tree. Configuration files are
// read from fs.
func NewRootCommand(fs afero.Fs) *cobra.Command {
	opts := &rootOptions{fs: fs}

	root := &cobra.Command{
		Use:   "kairos",
		Short: "Kairos runs discrete-event simulations.",
		Long: `Kairos runs discrete-event simulations on a virtual clock. ` +
			`Settings come from a YAML file, .env files and KAIROS_* ` +
			`variables, in increasing order of precedence, and flags ` +
			`override all of them.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	flags.StringSliceVar(&opts.envFiles, "env-file", nil,
		"env files with KAIROS_* variables (default .env if present)")
	flags.StringVar(&opts.logLevel, "log", "", "log level")
	flags.StringVar(&opts.backend, "backend", "", "event queue backend")
	flags.StringVar(&opts.resolution, "resolution", "", "time resolution")
	flags.Int64Var(&opts.seed, "seed", 0, "random seed")

	root.AddCommand(newRunCommand(opts), newBenchCommand(opts))

	return root
}

// Execute runs the kairos command. Errors exit with status 1 after the
// registered exit handlers have run.
func Execute() {
	err := NewRootCommand(afero.NewOsFs()).Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

// loadConfig merges the configuration sources and the persistent flags.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()

	if o.configPath != "" {
		loaded, err := config.Load(o.fs, o.configPath)
		if err != nil {
			return cfg, err
		}

		cfg = loaded
	}

	envFiles, err := o.resolveEnvFiles()
	if err != nil {
		return cfg, err
	}

	err = cfg.ApplyEnv(o.fs, envFiles...)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("log") {
		cfg.LogLevel = o.logLevel
	}

	if flags.Changed("backend") {
		cfg.Backend = o.backend
	}

	if flags.Changed("resolution") {
		cfg.Resolution = o.resolution
	}

	if flags.Changed("seed") {
		cfg.Seed = o.seed
	}

	return cfg, cfg.Validate()
}

func (o *rootOptions) resolveEnvFiles() ([]string, error) {
	if len(o.envFiles) > 0 {
		return o.envFiles, nil
	}

	_, err := o.fs.Stat(defaultEnvFile)
	switch {
	case err == nil:
		return []string{defaultEnvFile}, nil
	case errors.Is(err, os.ErrNotExist):
		return nil, nil
	default:
		return nil, err
	}
}
