// Package simulation ties an engine together with the services around it:
// configuration, event recording, metrics, tracing and the monitoring
// server.
package simulation

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kairos-sim/kairos/config"
	"github.com/kairos-sim/kairos/datarecording"
	"github.com/kairos-sim/kairos/monitoring"
	"github.com/kairos-sim/kairos/sim/timing"
	"github.com/kairos-sim/kairos/sim/vtime"
)

const shutdownTimeout = 5 * time.Second

// ErrTerminated is returned when a terminated simulation is run.
var ErrTerminated = errors.New("simulation: terminated")

// A Simulation owns an engine and the services attached to it.
type Simulation struct {
	id     string
	cfg    config.Config
	logger logrus.FieldLogger
	engine *timing.SerialEngine

	dataRecorder  datarecording.DataRecorder
	eventRecorder *datarecording.EventRecorder
	runRecorder   *datarecording.RunRecorder

	metrics         *monitoring.MetricsHook
	monitor         *monitoring.Monitor
	monitorURL      string
	shutdownTracing func(context.Context) error

	stopScheduled bool
	terminated    bool
}

// ID returns the ID of the simulation.
func (s *Simulation) ID() string {
	return s.id
}

// Config returns the configuration the simulation was built with.
func (s *Simulation) Config() config.Config {
	return s.cfg
}

// Logger returns the logger of the simulation.
func (s *Simulation) Logger() logrus.FieldLogger {
	return s.logger
}

// GetEngine returns the engine used in the simulation.
func (s *Simulation) GetEngine() timing.Engine {
	return s.engine
}

// GetDataRecorder returns the data recorder, or nil when events are not
// recorded.
func (s *Simulation) GetDataRecorder() datarecording.DataRecorder {
	return s.dataRecorder
}

// GetEventRecorder returns the hook that records events, or nil.
func (s *Simulation) GetEventRecorder() *datarecording.EventRecorder {
	return s.eventRecorder
}

// GetMetrics returns the metrics hook, or nil when metrics are off.
func (s *Simulation) GetMetrics() *monitoring.MetricsHook {
	return s.metrics
}

// GetMonitor returns the monitor, or nil when no monitor port is set.
func (s *Simulation) GetMonitor() *monitoring.Monitor {
	return s.monitor
}

// MonitorURL returns the address of the monitoring server, if any.
func (s *Simulation) MonitorURL() string {
	return s.monitorURL
}

// Run runs the engine. The first call schedules the configured stop time.
func (s *Simulation) Run(ctx context.Context) error {
	if s.terminated {
		return ErrTerminated
	}

	err := s.scheduleStop()
	if err != nil {
		return err
	}

	return monitoring.TraceRun(ctx, s.engine)
}

func (s *Simulation) scheduleStop() error {
	if s.stopScheduled {
		return nil
	}

	s.stopScheduled = true

	d, ok, err := s.cfg.StopDuration()
	if err != nil || !ok {
		return err
	}

	stopAt := vtime.FromDuration(d)
	if stopAt < s.engine.Now() {
		return nil
	}

	s.engine.StopAt(stopAt)

	return nil
}

// Terminate destroys the engine and releases every service. Calling it
// again does nothing.
func (s *Simulation) Terminate() error {
	if s.terminated {
		return nil
	}

	s.terminated = true

	var errs []error

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.monitor != nil {
		errs = append(errs, s.monitor.Shutdown(ctx))
	}

	errs = append(errs, s.engine.Destroy())

	if s.dataRecorder != nil {
		executed := strconv.FormatUint(s.engine.EventCount(), 10)
		s.runRecorder.Set("Events Executed", executed)
		s.runRecorder.End()
		errs = append(errs, s.dataRecorder.Close())
	}

	if s.shutdownTracing != nil {
		errs = append(errs, s.shutdownTracing(ctx))
	}

	s.logger.WithField("id", s.id).Debug("simulation terminated")

	return errors.Join(errs...)
}
