package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/browser"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/kairos-sim/kairos/examples/pingpong"
	"github.com/kairos-sim/kairos/monitoring"
	"github.com/kairos-sim/kairos/sim/hooking"
	"github.com/kairos-sim/kairos/sim/simulation"
	"github.com/kairos-sim/kairos/sim/timing"
	"github.com/kairos-sim/kairos/sim/vtime"
)

type runOptions struct {
	*rootOptions

	nodes   int
	pings   int
	freqGHz float64
	latency time.Duration
	timeout time.Duration
	loss    float64

	stopAt      string
	record      string
	monitorPort int
	metrics     bool
	tracing     bool
	logEvents   bool
	progress    bool
	openBrowser bool
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a ping-pong network simulation.",
		Long: `Run simulates a ring of nodes pinging their neighbour over ` +
			`a lossy link and prints a summary when no event is left or ` +
			`the stop time is reached.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.nodes, "nodes", 4, "number of nodes")
	flags.IntVar(&opts.pings, "pings", 100, "pings sent by each node")
	flags.Float64Var(&opts.freqGHz, "freq", 1, "node frequency in GHz")
	flags.DurationVar(&opts.latency, "latency", 10*time.Nanosecond,
		"link latency")
	flags.DurationVar(&opts.timeout, "timeout", 100*time.Nanosecond,
		"ping timeout")
	flags.Float64Var(&opts.loss, "loss", 0, "probability of losing a message")

	flags.StringVar(&opts.stopAt, "stop-at", "",
		"simulated time at which the run stops")
	flags.StringVar(&opts.record, "record", "",
		"record events into an SQLite database at this path")
	flags.IntVar(&opts.monitorPort, "monitor-port", 0,
		"serve the monitoring API on this port")
	flags.BoolVar(&opts.metrics, "metrics", false, "export Prometheus metrics")
	flags.BoolVar(&opts.tracing, "tracing", false, "print OpenTelemetry spans")
	flags.BoolVar(&opts.logEvents, "log-events", false, "log every event")
	flags.BoolVar(&opts.progress, "progress", false, "show a progress bar")
	flags.BoolVar(&opts.openBrowser, "open-browser", false,
		"open the monitoring API in a browser")

	return cmd
}

func (o *runOptions) run(cmd *cobra.Command) error {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("stop-at") {
		cfg.StopAt = o.stopAt
	}

	if flags.Changed("record") {
		cfg.RecordPath = o.record
	}

	if flags.Changed("monitor-port") {
		cfg.MonitorPort = o.monitorPort
	}

	cfg.Metrics = cfg.Metrics || o.metrics
	cfg.Tracing = cfg.Tracing || o.tracing
	cfg.LogEvents = cfg.LogEvents || o.logEvents

	level, err := cfg.Level()
	if err != nil {
		return err
	}

	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetLevel(level)

	s, err := simulation.MakeBuilder().
		WithConfig(cfg).
		WithLogger(logger).
		WithTraceWriter(cmd.OutOrStdout()).
		Build()
	if err != nil {
		return err
	}
	defer func() {
		if termErr := s.Terminate(); termErr != nil {
			logger.WithError(termErr).Error("terminating simulation")
		}
	}()

	netCfg := pingpong.Config{
		Nodes:   o.nodes,
		Pings:   o.pings,
		Freq:    vtime.Freq(o.freqGHz) * vtime.GHz,
		Latency: vtime.FromDuration(o.latency),
		Timeout: vtime.FromDuration(o.timeout),
		Loss:    o.loss,
		Seed:    cfg.Seed,
	}

	total := uint64(o.nodes) * uint64(o.pings)
	bars := o.startProgress(cmd.ErrOrStderr(), s.GetMonitor(), total)
	netCfg.OnComplete = bars.increment

	network, err := pingpong.NewNetwork(s.GetEngine(), netCfg)
	if err != nil {
		return err
	}

	perNode := hooking.NewContextCounter(timing.HookPosAfterEvent)
	s.GetEngine().AcceptHook(perNode)

	if o.openBrowser && s.MonitorURL() != "" {
		err = browser.OpenURL(s.MonitorURL() + "/api/engine")
		if err != nil {
			logger.WithError(err).Warn("cannot open browser")
		}
	}

	network.Start()

	start := time.Now()
	err = s.Run(cmd.Context())
	wall := time.Since(start)

	network.Close()
	bars.finish()

	if err != nil {
		return err
	}

	printRunSummary(cmd.OutOrStdout(), s, network.Stats(), wall)
	printNodeEvents(cmd.OutOrStdout(), network, perNode)

	return nil
}

// runProgress mirrors the settled pings on the terminal and on the
// monitor. Either side may be absent.
type runProgress struct {
	container *mpb.Progress
	bar       *mpb.Bar
	monitor   *monitoring.Monitor
	monBar    *monitoring.ProgressBar
}

func (o *runOptions) startProgress(
	w io.Writer,
	monitor *monitoring.Monitor,
	total uint64,
) *runProgress {
	p := &runProgress{monitor: monitor}

	if total == 0 {
		return p
	}

	if monitor != nil {
		p.monBar = monitor.CreateProgressBar("pings", total)
	}

	if o.progress {
		p.container = mpb.New(mpb.WithOutput(w), mpb.WithWidth(64))
		p.bar = p.container.AddBar(int64(total),
			mpb.PrependDecorators(
				decor.Name("pings", decor.WC{W: 6, C: decor.DindentRight}),
				decor.CountersNoUnit("%d / %d"),
			),
			mpb.AppendDecorators(
				decor.OnComplete(decor.Percentage(), "done"),
			),
		)
	}

	return p
}

func (p *runProgress) increment() {
	if p.bar != nil {
		p.bar.Increment()
	}

	if p.monBar != nil {
		p.monBar.IncrementFinished(1)
	}
}

func (p *runProgress) finish() {
	if p.container != nil {
		if !p.bar.Completed() {
			p.bar.Abort(false)
		}

		p.container.Wait()
	}

	if p.monBar != nil {
		p.monitor.CompleteProgressBar(p.monBar)
	}
}

func printRunSummary(
	w io.Writer,
	s *simulation.Simulation,
	stats pingpong.Stats,
	wall time.Duration,
) {
	engine := s.GetEngine()
	events := engine.EventCount()

	rate := 0.0
	if wall > 0 {
		rate = float64(events) / wall.Seconds()
	}

	fmt.Fprintf(w, "Simulation   %s\n", s.ID())
	fmt.Fprintf(w, "Backend      %s\n", s.Config().Backend)
	fmt.Fprintf(w, "Sim time     %s\n", engine.Now())
	fmt.Fprintf(w, "Events       %s\n", humanize.Comma(int64(events)))
	fmt.Fprintf(w, "Sent         %s\n", humanize.Comma(int64(stats.Sent)))
	fmt.Fprintf(w, "Received     %s\n", humanize.Comma(int64(stats.Received)))
	fmt.Fprintf(w, "Timed out    %s\n", humanize.Comma(int64(stats.TimedOut)))
	fmt.Fprintf(w, "Lost         %s\n", humanize.Comma(int64(stats.Lost)))
	fmt.Fprintf(w, "Mean RTT     %s\n", stats.MeanRTT())
	fmt.Fprintf(w, "Wall time    %s\n", wall.Round(time.Microsecond))
	fmt.Fprintf(w, "Event rate   %s\n", humanize.SIWithDigits(rate, 2, "ev/s"))

	if url := s.MonitorURL(); url != "" {
		fmt.Fprintf(w, "Monitor      %s\n", url)
	}
}

func printNodeEvents(
	w io.Writer,
	network *pingpong.Network,
	counter *hooking.ContextCounter,
) {
	fmt.Fprintln(w, "Events by node")

	for _, node := range network.Nodes() {
		fmt.Fprintf(w, "  node %-6d %s\n",
			node.ID(), humanize.Comma(int64(counter.Count(node.ID()))))
	}
}
