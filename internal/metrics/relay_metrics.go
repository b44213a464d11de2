package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "clown-relay"

// Outcome labels for processed requests.
const (
	OutcomeParsed            = "parsed"
	OutcomeExtracted         = "extracted"
	OutcomeFallback          = "fallback"
	OutcomeMissingCredential = "missing_credential"
	OutcomeUpstreamError     = "upstream_error"
)

// RelayMetrics records /process outcomes and upstream latency. A nil
// *RelayMetrics is valid and records nothing.
type RelayMetrics struct {
	requestsCounter   metric.Int64Counter
	fallbackCounter   metric.Int64Counter
	upstreamHistogram metric.Float64Histogram
}

// NewRelayMetrics creates the relay instruments on mp, or on the global
// provider when mp is nil.
func NewRelayMetrics(mp metric.MeterProvider) (*RelayMetrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	requestsCounter, err := meter.Int64Counter(
		"clown_relay.process.requests",
		metric.WithDescription("Total number of /process requests by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	fallbackCounter, err := meter.Int64Counter(
		"clown_relay.process.fallbacks",
		metric.WithDescription("Upstream responses that could not be parsed into an action envelope"),
		metric.WithUnit("{response}"),
	)
	if err != nil {
		return nil, err
	}

	upstreamHistogram, err := meter.Float64Histogram(
		"clown_relay.upstream.duration",
		metric.WithDescription("Duration of upstream model calls in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &RelayMetrics{
		requestsCounter:   requestsCounter,
		fallbackCounter:   fallbackCounter,
		upstreamHistogram: upstreamHistogram,
	}, nil
}

// RecordOutcome counts one finished /process request.
func (m *RelayMetrics) RecordOutcome(ctx context.Context, model, outcome string) {
	if m == nil {
		return
	}
	m.requestsCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("llm.model", model),
			attribute.String("outcome", outcome),
		),
	)
	if outcome == OutcomeFallback {
		m.fallbackCounter.Add(ctx, 1,
			metric.WithAttributes(attribute.String("llm.model", model)),
		)
	}
}

// RecordUpstream records the latency of one upstream call.
func (m *RelayMetrics) RecordUpstream(ctx context.Context, model string, duration time.Duration, failed bool) {
	if m == nil {
		return
	}
	status := "ok"
	if failed {
		status = "error"
	}
	m.upstreamHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("llm.model", model),
			attribute.String("status", status),
		),
	)
}
