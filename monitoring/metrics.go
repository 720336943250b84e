package monitoring

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kairos-sim/kairos/sim/hooking"
	"github.com/kairos-sim/kairos/sim/timing"
)

type pendingCounter interface {
	PendingCount() int
}

// MetricsHook is a hook that exports engine activity as Prometheus metrics.
type MetricsHook struct {
	gatherer prometheus.Gatherer

	Dispatched     prometheus.Counter
	Failed         prometheus.Counter
	Cancelled      prometheus.Counter
	Pending        prometheus.Gauge
	SimulationTime prometheus.Gauge
}

// NewMetricsHook registers the metrics against reg, or the default
// registry when reg is nil. Registering twice on the same registry reuses the
// existing collectors.
func NewMetricsHook(reg prometheus.Registerer) (*MetricsHook, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	h := &MetricsHook{gatherer: gatherer}

	var err error

	h.Dispatched, err = registerCounter(reg, prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kairos_events_dispatched_total",
			Help: "Number of events whose callback has run.",
		}))
	if err != nil {
		return nil, err
	}

	h.Failed, err = registerCounter(reg, prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kairos_events_failed_total",
			Help: "Number of events whose callback returned an error.",
		}))
	if err != nil {
		return nil, err
	}

	h.Cancelled, err = registerCounter(reg, prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kairos_events_cancelled_total",
			Help: "Number of pending events that were cancelled.",
		}))
	if err != nil {
		return nil, err
	}

	h.Pending, err = registerGauge(reg, prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kairos_events_pending",
			Help: "Number of events waiting to run.",
		}))
	if err != nil {
		return nil, err
	}

	h.SimulationTime, err = registerGauge(reg, prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kairos_simulation_time_seconds",
			Help: "Virtual time of the last dispatched event.",
		}))
	if err != nil {
		return nil, err
	}

	return h, nil
}

// Gatherer returns the gatherer that collects the metrics.
func (h *MetricsHook) Gatherer() prometheus.Gatherer {
	return h.gatherer
}

// Func updates the metrics.
func (h *MetricsHook) Func(ctx hooking.HookCtx) {
	id, ok := ctx.Item.(timing.EventID)
	if !ok {
		return
	}

	switch ctx.Pos {
	case timing.HookPosAfterEvent:
		h.Dispatched.Inc()
		h.SimulationTime.Set(id.Time().ToSeconds())

		if err, isErr := ctx.Detail.(error); isErr && err != nil {
			h.Failed.Inc()
		}
	case timing.HookPosEventCancelled:
		h.Cancelled.Inc()
	default:
		return
	}

	if p, ok := ctx.Domain.(pendingCounter); ok {
		h.Pending.Set(float64(p.PendingCount()))
	}
}

func registerCounter(
	reg prometheus.Registerer,
	c prometheus.Counter,
) (prometheus.Counter, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}

	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return nil, err
	}

	existing, ok := are.ExistingCollector.(prometheus.Counter)
	if !ok {
		return nil, fmt.Errorf("monitoring: %s registered with another type",
			c.Desc())
	}

	return existing, nil
}

func registerGauge(
	reg prometheus.Registerer,
	g prometheus.Gauge,
) (prometheus.Gauge, error) {
	err := reg.Register(g)
	if err == nil {
		return g, nil
	}

	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return nil, err
	}

	existing, ok := are.ExistingCollector.(prometheus.Gauge)
	if !ok {
		return nil, fmt.Errorf("monitoring: %s registered with another type",
			g.Desc())
	}

	return existing, nil
}
