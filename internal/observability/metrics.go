package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsCollector manages all metrics for the console
type MetricsCollector struct {
	meter    metric.Meter
	provider *sdkmetric.MeterProvider
	registry *prometheus.Registry

	// Run metrics
	runsSubmitted metric.Int64Counter
	runsFinished  metric.Int64Counter
	runsActive    metric.Int64UpDownCounter
	runSteps      metric.Int64Counter
	runTokens     metric.Int64Counter
	runDuration   metric.Float64Histogram

	// HTTP metrics
	httpRequests metric.Int64Counter
	httpLatency  metric.Float64Histogram
	httpBytes    metric.Int64Counter

	// Channel relay metrics
	channelClients   prometheus.Gauge
	channelPublished *prometheus.CounterVec
}

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// NewMetricsCollector creates a new metrics collector backed by a private
// Prometheus registry.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	meter := provider.Meter("agentconsole")

	collector := &MetricsCollector{
		meter:    meter,
		provider: provider,
		registry: registry,
	}

	if collector.runsSubmitted, err = meter.Int64Counter(
		"agentconsole.runs.submitted",
		metric.WithDescription("Total number of submitted agent runs"),
		metric.WithUnit("{run}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create runs_submitted counter: %w", err)
	}

	if collector.runsFinished, err = meter.Int64Counter(
		"agentconsole.runs.finished",
		metric.WithDescription("Agent runs that reached a terminal status"),
		metric.WithUnit("{run}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create runs_finished counter: %w", err)
	}

	if collector.runsActive, err = meter.Int64UpDownCounter(
		"agentconsole.runs.active",
		metric.WithDescription("Number of runs currently executing"),
		metric.WithUnit("{run}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create runs_active gauge: %w", err)
	}

	if collector.runSteps, err = meter.Int64Counter(
		"agentconsole.run.steps",
		metric.WithDescription("Total number of executed run steps"),
		metric.WithUnit("{step}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create run_steps counter: %w", err)
	}

	if collector.runTokens, err = meter.Int64Counter(
		"agentconsole.run.tokens",
		metric.WithDescription("Tokens consumed by runs"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create run_tokens counter: %w", err)
	}

	if collector.runDuration, err = meter.Float64Histogram(
		"agentconsole.run.duration",
		metric.WithDescription("Run wall-clock duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create run_duration histogram: %w", err)
	}

	if collector.httpRequests, err = meter.Int64Counter(
		"agentconsole.http.requests.total",
		metric.WithDescription("Total number of HTTP requests served"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http_requests counter: %w", err)
	}

	if collector.httpLatency, err = meter.Float64Histogram(
		"agentconsole.http.latency",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http_latency histogram: %w", err)
	}

	if collector.httpBytes, err = meter.Int64Counter(
		"agentconsole.http.response.bytes",
		metric.WithDescription("HTTP response bytes written"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http_bytes counter: %w", err)
	}

	factory := promauto.With(registry)
	collector.channelClients = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "agentconsole",
		Subsystem: "channel",
		Name:      "clients",
		Help:      "Websocket peers connected to the broadcast relay.",
	})
	collector.channelPublished = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentconsole",
		Subsystem: "channel",
		Name:      "published_total",
		Help:      "Broadcast keys relayed to peers.",
	}, []string{"key"})

	return collector, nil
}

// Handler returns the Prometheus scrape handler. A disabled collector serves 404.
func (m *MetricsCollector) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRunSubmitted records a newly started run
func (m *MetricsCollector) RecordRunSubmitted(ctx context.Context) {
	if m == nil || m.runsSubmitted == nil {
		return
	}
	m.runsSubmitted.Add(ctx, 1)
	m.runsActive.Add(ctx, 1)
}

// RecordRunFinished records a run reaching a terminal status
func (m *MetricsCollector) RecordRunFinished(ctx context.Context, status string, duration time.Duration, tokens int) {
	if m == nil || m.runsFinished == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.runsFinished.Add(ctx, 1, attrs)
	m.runsActive.Add(ctx, -1)
	m.runDuration.Record(ctx, duration.Seconds(), attrs)
	if tokens > 0 {
		m.runTokens.Add(ctx, int64(tokens))
	}
}

// RecordRunStep records one executed step
func (m *MetricsCollector) RecordRunStep(ctx context.Context) {
	if m == nil || m.runSteps == nil {
		return
	}
	m.runSteps.Add(ctx, 1)
}

// RecordHTTPServerRequest records metrics for HTTP server requests
func (m *MetricsCollector) RecordHTTPServerRequest(ctx context.Context, method, route string, status int, duration time.Duration, responseBytes int64) {
	if m == nil || m.httpRequests == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.String("http.status_class", statusClass(status)),
	)
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpLatency.Record(ctx, duration.Seconds(), attrs)
	if responseBytes > 0 {
		m.httpBytes.Add(ctx, responseBytes, attrs)
	}
}

// ChannelClientConnected increments the relay peer gauge
func (m *MetricsCollector) ChannelClientConnected() {
	if m == nil || m.channelClients == nil {
		return
	}
	m.channelClients.Inc()
}

// ChannelClientDisconnected decrements the relay peer gauge
func (m *MetricsCollector) ChannelClientDisconnected() {
	if m == nil || m.channelClients == nil {
		return
	}
	m.channelClients.Dec()
}

// RecordChannelPublish counts a relayed broadcast key
func (m *MetricsCollector) RecordChannelPublish(key string) {
	if m == nil || m.channelPublished == nil {
		return
	}
	m.channelPublished.WithLabelValues(key).Inc()
}

// Shutdown flushes the meter provider
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
