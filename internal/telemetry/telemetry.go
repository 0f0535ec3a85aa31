package telemetry

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector receives binding lifecycle events from the host.
// Calls happen inline with bind/unbind and callback delivery, so they must be cheap.
type Collector interface {
	IncBind(worker string)
	IncUnbind(worker string)
	IncConnected(worker string)
	IncDisconnected(worker string)
	SetBindings(worker string, count int)
	SetWorkerRunning(worker string, running bool)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncBind(string)                {}
func (noopCollector) IncUnbind(string)              {}
func (noopCollector) IncConnected(string)           {}
func (noopCollector) IncDisconnected(string)        {}
func (noopCollector) SetBindings(string, int)       {}
func (noopCollector) SetWorkerRunning(string, bool) {}

// PrometheusCollector exposes binding counters via Prometheus.
type PrometheusCollector struct {
	binds         *prometheus.CounterVec
	unbinds       *prometheus.CounterVec
	connects      *prometheus.CounterVec
	disconnects   *prometheus.CounterVec
	bindings      *prometheus.GaugeVec
	workerRunning *prometheus.GaugeVec
}

// NewPrometheusCollector registers the metrics with reg. Metrics that are
// already registered are reused, so several collectors may share one registry.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	var err error
	p := &PrometheusCollector{}
	if p.binds, err = registerCounter(reg, "engine_host_bind_total", "Number of accepted bind requests per worker."); err != nil {
		return nil, err
	}
	if p.unbinds, err = registerCounter(reg, "engine_host_unbind_total", "Number of unbind requests per worker."); err != nil {
		return nil, err
	}
	if p.connects, err = registerCounter(reg, "engine_host_connected_total", "Number of connected callbacks delivered per worker."); err != nil {
		return nil, err
	}
	if p.disconnects, err = registerCounter(reg, "engine_host_disconnected_total", "Number of disconnected callbacks delivered per worker."); err != nil {
		return nil, err
	}
	if p.bindings, err = registerGauge(reg, "engine_host_bindings", "Number of targets currently bound per worker."); err != nil {
		return nil, err
	}
	if p.workerRunning, err = registerGauge(reg, "engine_host_worker_running", "Whether the worker is running (1) or stopped (0)."); err != nil {
		return nil, err
	}
	return p, nil
}

func registerCounter(reg prometheus.Registerer, name, help string) (*prometheus.CounterVec, error) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, []string{"worker"})
	if err := reg.Register(counter); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, name, help string) (*prometheus.GaugeVec, error) {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, []string{"worker"})
	if err := reg.Register(gauge); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return gauge, nil
}

func (p *PrometheusCollector) IncBind(worker string) {
	if p == nil {
		return
	}
	p.binds.WithLabelValues(worker).Inc()
}

func (p *PrometheusCollector) IncUnbind(worker string) {
	if p == nil {
		return
	}
	p.unbinds.WithLabelValues(worker).Inc()
}

func (p *PrometheusCollector) IncConnected(worker string) {
	if p == nil {
		return
	}
	p.connects.WithLabelValues(worker).Inc()
}

func (p *PrometheusCollector) IncDisconnected(worker string) {
	if p == nil {
		return
	}
	p.disconnects.WithLabelValues(worker).Inc()
}

func (p *PrometheusCollector) SetBindings(worker string, count int) {
	if p == nil {
		return
	}
	p.bindings.WithLabelValues(worker).Set(float64(count))
}

func (p *PrometheusCollector) SetWorkerRunning(worker string, running bool) {
	if p == nil {
		return
	}
	v := 0.0
	if running {
		v = 1
	}
	p.workerRunning.WithLabelValues(worker).Set(v)
}
