package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestNoopCollector(t *testing.T) {
	collector := Noop()
	require.NotNil(t, collector)
	collector.IncBind("engine")
	collector.SetBindings("engine", 3)
}

func TestPrometheusCollectorRegistersAndReuses(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	collector.IncBind("engine")
	collector.IncConnected("engine")
	collector.SetBindings("engine", 2)
	collector.SetWorkerRunning("engine", true)

	again, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.Same(t, collector.binds, again.binds)

	again.IncBind("engine")

	families := gather(t, reg)
	requireCounterValue(t, families["engine_host_bind_total"], 2)
	requireCounterValue(t, families["engine_host_connected_total"], 1)
	requireGaugeValue(t, families["engine_host_bindings"], 2)
	requireGaugeValue(t, families["engine_host_worker_running"], 1)
	require.NotContains(t, families, "engine_host_unbind_total", "vectors without samples are not gathered")
}

func TestPrometheusCollectorNilSafe(t *testing.T) {
	var p *PrometheusCollector
	p.IncBind("engine")
	p.SetWorkerRunning("engine", false)
}

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	metrics, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(metrics))
	for _, mf := range metrics {
		out[mf.GetName()] = mf
	}
	return out
}

func requireCounterValue(t *testing.T, mf *dto.MetricFamily, value float64) {
	t.Helper()
	require.NotNil(t, mf)
	require.Len(t, mf.Metric, 1)
	require.NotNil(t, mf.Metric[0].Counter)
	require.Equal(t, value, mf.Metric[0].Counter.GetValue())
}

func requireGaugeValue(t *testing.T, mf *dto.MetricFamily, value float64) {
	t.Helper()
	require.NotNil(t, mf)
	require.Len(t, mf.Metric, 1)
	require.NotNil(t, mf.Metric[0].Gauge)
	require.Equal(t, value, mf.Metric[0].Gauge.GetValue())
}
