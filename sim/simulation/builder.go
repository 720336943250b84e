package simulation

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/kairos-sim/kairos/config"
	"github.com/kairos-sim/kairos/datarecording"
	"github.com/kairos-sim/kairos/monitoring"
	"github.com/kairos-sim/kairos/sim/timing"
	"github.com/kairos-sim/kairos/sim/vtime"
)

// Builder can be used to build a simulation.
type Builder struct {
	cfg         config.Config
	logger      logrus.FieldLogger
	registerer  prometheus.Registerer
	traceWriter io.Writer
}

// MakeBuilder creates a new builder with the default configuration.
func MakeBuilder() Builder {
	return Builder{
		cfg:         config.Default(),
		traceWriter: os.Stdout,
	}
}

// WithConfig sets the configuration of the simulation.
func (b Builder) WithConfig(cfg config.Config) Builder {
	b.cfg = cfg
	return b
}

// WithLogger sets the logger. Without one, the simulation logs through a new
// logrus logger at the configured level.
func (b Builder) WithLogger(logger logrus.FieldLogger) Builder {
	b.logger = logger
	return b
}

// WithRegisterer sets where the metrics are registered. Without one, every
// simulation gets its own registry.
func (b Builder) WithRegisterer(reg prometheus.Registerer) Builder {
	b.registerer = reg
	return b
}

// WithTraceWriter sets where spans are written when tracing is on.
func (b Builder) WithTraceWriter(w io.Writer) Builder {
	b.traceWriter = w
	return b
}

// Build builds the simulation. It fails if the configuration is invalid or
// asks for a resolution other than the one already in use.
func (b Builder) Build() (*Simulation, error) {
	err := b.cfg.Validate()
	if err != nil {
		return nil, err
	}

	unit, _ := b.cfg.ResolutionUnit()

	err = vtime.UseResolution(unit)
	if err != nil {
		return nil, err
	}

	logger, err := b.buildLogger()
	if err != nil {
		return nil, err
	}

	kind, _ := b.cfg.BackendKind()

	s := &Simulation{
		id:     xid.New().String(),
		cfg:    b.cfg,
		logger: logger,
	}

	s.engine = timing.MakeSerialEngineBuilder().
		WithBackend(kind).
		WithLogger(logger).
		Build()

	if b.cfg.LogEvents {
		s.engine.AcceptHook(timing.NewEventLogger(logger))
	}

	err = b.setUpRecording(s)
	if err != nil {
		return nil, err
	}

	err = b.setUpObservability(s)
	if err != nil {
		_ = s.Terminate()
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"id":         s.id,
		"backend":    kind,
		"resolution": unit,
	}).Debug("simulation built")

	return s, nil
}

func (b Builder) buildLogger() (logrus.FieldLogger, error) {
	if b.logger != nil {
		return b.logger, nil
	}

	level, err := b.cfg.Level()
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetLevel(level)

	return logger, nil
}

func (b Builder) setUpRecording(s *Simulation) error {
	if b.cfg.RecordPath == "" {
		return nil
	}

	filename := b.cfg.RecordPath + ".sqlite3"

	_, err := os.Stat(filename)
	if err == nil {
		return fmt.Errorf("simulation: record file %s already exists", filename)
	}

	s.dataRecorder = datarecording.New(b.cfg.RecordPath)
	s.eventRecorder = datarecording.NewEventRecorder(s.dataRecorder)
	s.engine.AcceptHook(s.eventRecorder)

	s.runRecorder = datarecording.NewRunRecorder(s.dataRecorder)
	s.runRecorder.Start()
	s.runRecorder.Set("Simulation ID", s.id)
	s.runRecorder.Set("Backend", b.cfg.Backend)
	s.runRecorder.Set("Resolution", b.cfg.Resolution)
	s.runRecorder.Set("Seed", fmt.Sprint(b.cfg.Seed))

	s.logger.WithField("file", filename).Info("recording events")

	return nil
}

func (b Builder) setUpObservability(s *Simulation) error {
	if b.cfg.Metrics {
		reg := b.registerer
		if reg == nil {
			reg = prometheus.NewRegistry()
		}

		metrics, err := monitoring.NewMetricsHook(reg)
		if err != nil {
			return err
		}

		s.metrics = metrics
		s.engine.AcceptHook(metrics)
	}

	if b.cfg.Tracing {
		shutdown, err := monitoring.InitTracing(
			context.Background(), true, b.traceWriter)
		if err != nil {
			return err
		}

		s.shutdownTracing = shutdown
	}

	if b.cfg.MonitorPort > 0 {
		s.monitor = monitoring.NewMonitor().
			WithLogger(s.logger).
			WithPortNumber(b.cfg.MonitorPort)
		s.monitor.RegisterEngine(s.engine)

		if s.metrics != nil {
			s.monitor.RegisterGatherer(s.metrics.Gatherer())
		}

		url, err := s.monitor.StartServer()
		if err != nil {
			return err
		}

		s.monitorURL = url
	}

	return nil
}
