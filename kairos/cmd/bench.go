package cmd

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/kairos-sim/kairos/sim/queue"
	"github.com/kairos-sim/kairos/sim/timing"
	"github.com/kairos-sim/kairos/sim/vtime"
)

// ErrChecksumMismatch is returned when two backends dispatch the hold model
// in different orders.
var ErrChecksumMismatch = errors.New("bench: backends disagree")

// holdConfig describes one run of the hold model: population events are
// pending at all times, and every dispatch schedules its replacement an
// exponentially distributed increment later, until holds dispatches are
// done.
type holdConfig struct {
	population int
	holds      uint64
	mean       time.Duration
	seed       int64
}

type holdResult struct {
	dispatched uint64
	checksum   uint64
	wall       time.Duration
}

type benchResult struct {
	kind     queue.Kind
	mean     float64
	stddev   float64
	checksum uint64
}

type benchOptions struct {
	*rootOptions

	hold   holdConfig
	repeat int
}

func newBenchCommand(root *rootOptions) *cobra.Command {
	opts := &benchOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark the event queue backends with the hold model.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.hold.population, "events", 1000, "pending events")
	flags.Uint64Var(&opts.hold.holds, "holds", 100000, "dispatches per run")
	flags.DurationVar(&opts.hold.mean, "mean", time.Microsecond,
		"mean increment between an event and its replacement")
	flags.IntVar(&opts.repeat, "repeat", 5, "runs per backend")

	return cmd
}

func (o *benchOptions) run(cmd *cobra.Command) error {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return err
	}

	if o.repeat < 1 || o.hold.population < 1 || o.hold.mean <= 0 {
		return errors.New("bench: repeat, events and mean must be positive")
	}

	unit, _ := cfg.ResolutionUnit()

	err = vtime.UseResolution(unit)
	if err != nil {
		return err
	}

	level, _ := cfg.Level()
	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetLevel(level)

	o.hold.seed = cfg.Seed

	results, err := benchmark(o.hold, queue.Kinds(), o.repeat, logger)
	printBenchResults(cmd.OutOrStdout(), o.hold, results)

	return err
}

// benchmark runs the hold model repeat times on every backend. All the runs
// must produce the same checksum.
func benchmark(
	cfg holdConfig,
	kinds []queue.Kind,
	repeat int,
	logger logrus.FieldLogger,
) ([]benchResult, error) {
	var results []benchResult

	for _, kind := range kinds {
		walls := make([]float64, 0, repeat)

		var checksum uint64
		for i := 0; i < repeat; i++ {
			r := runHold(kind, cfg)
			walls = append(walls, r.wall.Seconds())
			checksum = r.checksum

			logger.WithFields(logrus.Fields{
				"backend": kind,
				"run":     i,
				"wall":    r.wall,
			}).Debug("hold run finished")
		}

		mean, stddev := stat.MeanStdDev(walls, nil)
		if len(walls) < 2 {
			stddev = 0
		}

		results = append(results, benchResult{
			kind:     kind,
			mean:     mean,
			stddev:   stddev,
			checksum: checksum,
		})
	}

	for _, r := range results[1:] {
		if r.checksum != results[0].checksum {
			return results, fmt.Errorf("%w: %s has %x, %s has %x",
				ErrChecksumMismatch,
				results[0].kind, results[0].checksum, r.kind, r.checksum)
		}
	}

	return results, nil
}

func runHold(kind queue.Kind, cfg holdConfig) holdResult {
	engine := timing.MakeSerialEngineBuilder().WithBackend(kind).Build()
	defer func() { _ = engine.Destroy() }()

	rng := rand.New(rand.NewSource(cfg.seed))
	mean := float64(vtime.FromDuration(cfg.mean))
	increment := func() vtime.VTime {
		return vtime.VTime(rng.ExpFloat64() * mean)
	}

	var result holdResult

	var hold timing.Callback
	hold = func() error {
		result.dispatched++
		result.checksum = result.checksum*31 + uint64(engine.Now())

		if result.dispatched >= cfg.holds {
			engine.Stop()
			return nil
		}

		engine.Schedule(increment(), hold)

		return nil
	}

	for i := 0; i < cfg.population; i++ {
		engine.Schedule(increment(), hold)
	}

	start := time.Now()
	_ = engine.Run()
	result.wall = time.Since(start)

	return result
}

func printBenchResults(w io.Writer, cfg holdConfig, results []benchResult) {
	fmt.Fprintf(w, "Hold model: %s pending events, %s dispatches\n\n",
		humanize.Comma(int64(cfg.population)),
		humanize.Comma(int64(cfg.holds)))
	fmt.Fprintf(w, "%-10s %14s %14s %14s %18s\n",
		"backend", "mean", "stddev", "rate", "checksum")

	for _, r := range results {
		rate := 0.0
		if r.mean > 0 {
			rate = float64(cfg.holds) / r.mean
		}

		fmt.Fprintf(w, "%-10s %14s %14s %14s %18x\n",
			r.kind,
			seconds(r.mean),
			seconds(r.stddev),
			humanize.SIWithDigits(rate, 2, "ev/s"),
			r.checksum)
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second)).Round(time.Microsecond)
}
