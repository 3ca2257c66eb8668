// Package metrics exports the sync engine's OpenTelemetry instruments in Prometheus format:
// call counters, item counters, HTTP request metrics and gauges for queue depth and
// remote reachability.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// QueueDepth is a snapshot of the outbox sampled at scrape time.
type QueueDepth struct {
	Pending      int64
	DeadLettered int64
	Staged       int64
}

// LinkState is a snapshot of the connectivity monitor sampled at scrape time.
type LinkState struct {
	Reachable bool
	Attempt   int
}

// StateSources supplies the values behind the engine gauges. Either source may be nil.
type StateSources struct {
	Queue func(ctx context.Context) (QueueDepth, error)
	Link  func() LinkState
}

// Provider manages the OpenTelemetry meter provider and Prometheus exporter.
type Provider struct {
	namespace     string
	meterProvider *metric.MeterProvider
	exporter      *promexporter.Exporter
	registry      *prometheus.Registry

	mu           sync.Mutex
	registration otelmetric.Registration
}

// NewProvider creates a provider whose metric names are prefixed with namespace (e.g. "posoffline").
func NewProvider(namespace string) (*Provider, error) {
	registry := prometheus.NewRegistry()

	exporter, err := promexporter.New(
		promexporter.WithRegisterer(registry),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := metric.NewMeterProvider(
		metric.WithReader(exporter),
	)

	return &Provider{
		namespace:     namespace,
		meterProvider: meterProvider,
		exporter:      exporter,
		registry:      registry,
	}, nil
}

// Handler serves the registry in Prometheus exposition format.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// MeterProvider returns the OpenTelemetry meter provider for creating meters.
func (p *Provider) MeterProvider() *metric.MeterProvider {
	return p.meterProvider
}

// ObserveState registers the engine gauges, sampled on every scrape:
//
//	{ns}_queue_operations{state="pending|dead_lettered|staged"}
//	{ns}_remote_reachable          1 when the last probe reached the remote authority
//	{ns}_reconnect_attempts        failed probes since the last success
//
// Calling it again replaces the previous sources.
func (p *Provider) ObserveState(src StateSources) error {
	meter := p.meterProvider.Meter(p.namespace)

	queueGauge, err := meter.Int64ObservableGauge(
		fmt.Sprintf("%s_queue_operations", p.namespace),
		otelmetric.WithDescription("Operations held in the outbox by state"),
		otelmetric.WithUnit("{operation}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create queue gauge: %w", err)
	}

	reachableGauge, err := meter.Int64ObservableGauge(
		fmt.Sprintf("%s_remote_reachable", p.namespace),
		otelmetric.WithDescription("Whether the remote authority answered the last probe"),
	)
	if err != nil {
		return fmt.Errorf("failed to create reachable gauge: %w", err)
	}

	attemptGauge, err := meter.Int64ObservableGauge(
		fmt.Sprintf("%s_reconnect_attempts", p.namespace),
		otelmetric.WithDescription("Failed probes since the remote authority was last reachable"),
		otelmetric.WithUnit("{attempt}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create attempt gauge: %w", err)
	}

	callback := func(ctx context.Context, o otelmetric.Observer) error {
		var errs []error

		if src.Queue != nil {
			depth, err := src.Queue(ctx)
			if err != nil {
				errs = append(errs, fmt.Errorf("failed to sample queue depth: %w", err))
			} else {
				o.ObserveInt64(queueGauge, depth.Pending, otelmetric.WithAttributes(attribute.String("state", "pending")))
				o.ObserveInt64(queueGauge, depth.DeadLettered,
					otelmetric.WithAttributes(attribute.String("state", "dead_lettered")))
				o.ObserveInt64(queueGauge, depth.Staged, otelmetric.WithAttributes(attribute.String("state", "staged")))
			}
		}

		if src.Link != nil {
			link := src.Link()
			var reachable int64
			if link.Reachable {
				reachable = 1
			}
			o.ObserveInt64(reachableGauge, reachable)
			o.ObserveInt64(attemptGauge, int64(link.Attempt))
		}

		return errors.Join(errs...)
	}

	registration, err := meter.RegisterCallback(callback, queueGauge, reachableGauge, attemptGauge)
	if err != nil {
		return fmt.Errorf("failed to register state callback: %w", err)
	}

	p.mu.Lock()
	previous := p.registration
	p.registration = registration
	p.mu.Unlock()

	if previous != nil {
		return previous.Unregister()
	}
	return nil
}

// Shutdown stops the gauges and flushes the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.meterProvider == nil {
		return nil
	}

	p.mu.Lock()
	registration := p.registration
	p.registration = nil
	p.mu.Unlock()

	var errs []error
	if registration != nil {
		errs = append(errs, registration.Unregister())
	}
	errs = append(errs, p.meterProvider.Shutdown(ctx))
	return errors.Join(errs...)
}
