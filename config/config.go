// Package config loads the settings of a kairos run from YAML files, .env
// files and KAIROS_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/kairos-sim/kairos/sim/queue"
	"github.com/kairos-sim/kairos/sim/vtime"
)

// EnvPrefix prefixes every environment variable the package reads.
const EnvPrefix = "KAIROS_"

var (
	// ErrUnknownBackend is returned when the backend is not a queue kind.
	ErrUnknownBackend = errors.New("config: unknown backend")

	// ErrInvalid is returned when a setting has an unusable value.
	ErrInvalid = errors.New("config: invalid value")
)

// Config holds the settings of a run.
type Config struct {
	// Backend is the queue that orders pending events.
	Backend string `yaml:"backend"`

	// Resolution is the tick size, one of s, ms, us, ns, ps, fs.
	Resolution string `yaml:"resolution"`

	// LogLevel is a logrus level name.
	LogLevel string `yaml:"log_level"`

	// LogEvents logs one line per dispatched event.
	LogEvents bool `yaml:"log_events"`

	// RecordPath, if set, records events into an SQLite database at this
	// path (without the .sqlite3 suffix).
	RecordPath string `yaml:"record_path"`

	// MonitorPort starts the monitoring server when positive.
	MonitorPort int `yaml:"monitor_port"`

	// Metrics exports Prometheus metrics from the monitoring server.
	Metrics bool `yaml:"metrics"`

	// Tracing emits OpenTelemetry spans to stdout.
	Tracing bool `yaml:"tracing"`

	// Seed feeds the random number generators of the models.
	Seed int64 `yaml:"seed"`

	// StopAt is a Go duration of simulated time after which the run stops.
	// Empty means run until no event is left.
	StopAt string `yaml:"stop_at"`
}

// Default returns the settings used when nothing else is given.
func Default() Config {
	return Config{
		Backend:    string(queue.KindHeap),
		Resolution: vtime.NS.String(),
		LogLevel:   logrus.InfoLevel.String(),
		Seed:       1,
	}
}

// Load reads a YAML file on top of the defaults. Unknown keys are errors.
func Load(fs afero.Fs, path string) (Config, error) {
	cfg := Default()

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	err = decoder.Decode(&cfg)
	if err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	err = cfg.Validate()
	if err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyEnv overrides settings from KAIROS_* variables. The process
// environment takes precedence over the .env files; among the files, the
// first one that sets a variable wins.
func (c *Config) ApplyEnv(fs afero.Fs, envFiles ...string) error {
	vars := make(map[string]string)

	for _, path := range envFiles {
		fileVars, err := readEnvFile(fs, path)
		if err != nil {
			return err
		}

		for k, v := range fileVars {
			if _, ok := vars[k]; !ok {
				vars[k] = v
			}
		}
	}

	lookup := func(name string) (string, bool) {
		key := EnvPrefix + name
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}

		v, ok := vars[key]

		return v, ok
	}

	err := c.applyVars(lookup)
	if err != nil {
		return err
	}

	return c.Validate()
}

func readEnvFile(fs afero.Fs, path string) (map[string]string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading env file %s: %w", path, err)
	}
	defer f.Close()

	vars, err := godotenv.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing env file %s: %w", path, err)
	}

	return vars, nil
}

func (c *Config) applyVars(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"BACKEND":     &c.Backend,
		"RESOLUTION":  &c.Resolution,
		"LOG_LEVEL":   &c.LogLevel,
		"RECORD_PATH": &c.RecordPath,
		"STOP_AT":     &c.StopAt,
	}
	for name, field := range strs {
		if v, ok := lookup(name); ok {
			*field = v
		}
	}

	bools := map[string]*bool{
		"LOG_EVENTS": &c.LogEvents,
		"METRICS":    &c.Metrics,
		"TRACING":    &c.Tracing,
	}
	for name, field := range bools {
		v, ok := lookup(name)
		if !ok {
			continue
		}

		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q", ErrInvalid, EnvPrefix, name, v)
		}
		*field = b
	}

	if v, ok := lookup("MONITOR_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %sMONITOR_PORT=%q", ErrInvalid, EnvPrefix, v)
		}
		c.MonitorPort = port
	}

	if v, ok := lookup("SEED"); ok {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %sSEED=%q", ErrInvalid, EnvPrefix, v)
		}
		c.Seed = seed
	}

	return nil
}

// Validate checks every setting.
func (c Config) Validate() error {
	if _, err := c.BackendKind(); err != nil {
		return err
	}

	if _, err := c.ResolutionUnit(); err != nil {
		return err
	}

	if _, err := c.Level(); err != nil {
		return err
	}

	if c.MonitorPort < 0 || c.MonitorPort > 65535 {
		return fmt.Errorf("%w: monitor_port %d", ErrInvalid, c.MonitorPort)
	}

	if _, _, err := c.StopDuration(); err != nil {
		return err
	}

	return nil
}

// BackendKind returns the configured queue kind.
func (c Config) BackendKind() (queue.Kind, error) {
	kind, err := queue.ParseKind(c.Backend)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnknownBackend, err)
	}

	return kind, nil
}

// ResolutionUnit returns the configured tick size.
func (c Config) ResolutionUnit() (vtime.Unit, error) {
	u, err := vtime.ParseUnit(c.Resolution)
	if err != nil {
		return 0, fmt.Errorf("%w: resolution: %w", ErrInvalid, err)
	}

	if !u.CanBeResolution() {
		return 0, fmt.Errorf("%w: resolution %s is coarser than a second",
			ErrInvalid, u)
	}

	return u, nil
}

// Level returns the configured log level.
func (c Config) Level() (logrus.Level, error) {
	level, err := logrus.ParseLevel(strings.TrimSpace(c.LogLevel))
	if err != nil {
		return 0, fmt.Errorf("%w: log_level: %w", ErrInvalid, err)
	}

	return level, nil
}

// StopDuration parses StopAt. ok is false when no stop time is set.
func (c Config) StopDuration() (d time.Duration, ok bool, err error) {
	if strings.TrimSpace(c.StopAt) == "" {
		return 0, false, nil
	}

	d, err = time.ParseDuration(c.StopAt)
	if err != nil {
		return 0, false, fmt.Errorf("%w: stop_at: %w", ErrInvalid, err)
	}

	if d < 0 {
		return 0, false, fmt.Errorf("%w: stop_at %s is negative", ErrInvalid, d)
	}

	return d, true, nil
}
