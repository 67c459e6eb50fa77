// Package tracking records OpenTelemetry metrics and spans for pipeline calls.
package tracking

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	meterName  = "httppipe/httpclient"
	tracerName = "httppipe/httpclient"

	metricRequestDuration = "httppipe.request.duration"
	metricRetry           = "httppipe.retry"
	metricCacheLookup     = "httppipe.cache.lookup"
	metricAuthRefresh     = "httppipe.auth.refresh"
	metricFailure         = "httppipe.failure"

	attrMethod     = "http.request.method"
	attrStatusCode = "http.response.status_code"
	attrResult     = "result"
	attrOutcome    = "outcome"
	attrKind       = "failure.kind"
	attrAttempt    = "attempt"
	attrReason     = "reason"
)

// Cache lookup results.
const (
	CacheHit         = "hit"
	CacheMiss        = "miss"
	CacheStale       = "stale"
	CacheRevalidated = "revalidated"
)

// Refresh outcomes.
const (
	RefreshSuccess = "success"
	RefreshFailure = "failure"
)

var (
	meter         metric.Meter
	meterOnce     sync.Once
	meterInitMu   sync.Mutex
	metricsInited bool

	requestDuration metric.Float64Histogram
	retryCounter    metric.Int64Counter
	cacheCounter    metric.Int64Counter
	refreshCounter  metric.Int64Counter
	failureCounter  metric.Int64Counter
)

func logMetricError(name string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize httpclient metric %s: %v\n", name, err)
	}
}

func initMeter() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	if meter != nil {
		return
	}
	meter = otel.Meter(meterName)

	var err error
	requestDuration, err = meter.Float64Histogram(metricRequestDuration,
		metric.WithDescription("Duration of logical pipeline calls including retries"),
		metric.WithUnit("s"))
	logMetricError(metricRequestDuration, err)

	retryCounter, err = meter.Int64Counter(metricRetry,
		metric.WithDescription("Retries scheduled by the retry stage"),
		metric.WithUnit("{retry}"))
	logMetricError(metricRetry, err)

	cacheCounter, err = meter.Int64Counter(metricCacheLookup,
		metric.WithDescription("Cache stage outcomes"),
		metric.WithUnit("{lookup}"))
	logMetricError(metricCacheLookup, err)

	refreshCounter, err = meter.Int64Counter(metricAuthRefresh,
		metric.WithDescription("Token refresh attempts"),
		metric.WithUnit("{refresh}"))
	logMetricError(metricAuthRefresh, err)

	failureCounter, err = meter.Int64Counter(metricFailure,
		metric.WithDescription("Calls that ended in a classified failure"),
		metric.WithUnit("{failure}"))
	logMetricError(metricFailure, err)

	metricsInited = true
}

func ensureMeter() {
	meterOnce.Do(initMeter)
}

// RecordRequest records the duration of a finished call. status is 0 when
// no response was produced.
func RecordRequest(ctx context.Context, method string, status int, d time.Duration) {
	ensureMeter()
	if requestDuration == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String(attrMethod, method)}
	if status > 0 {
		attrs = append(attrs, attribute.Int(attrStatusCode, status))
	}
	requestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

// RecordRetry counts one scheduled retry. reason is the failure that caused it.
func RecordRetry(ctx context.Context, reason string) {
	ensureMeter()
	if retryCounter != nil {
		retryCounter.Add(ctx, 1, metric.WithAttributes(attribute.String(attrReason, reason)))
	}
}

// RecordCacheLookup counts a cache stage outcome.
func RecordCacheLookup(ctx context.Context, result string) {
	ensureMeter()
	if cacheCounter != nil {
		cacheCounter.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
	}
}

// RecordRefresh counts a token refresh with its outcome.
func RecordRefresh(ctx context.Context, outcome string) {
	ensureMeter()
	if refreshCounter != nil {
		refreshCounter.Add(ctx, 1, metric.WithAttributes(attribute.String(attrOutcome, outcome)))
	}
}

// RecordFailure counts a classified failure.
func RecordFailure(ctx context.Context, kind string) {
	ensureMeter()
	if failureCounter != nil {
		failureCounter.Add(ctx, 1, metric.WithAttributes(attribute.String(attrKind, kind)))
	}
}

// StartCall opens the span covering one logical call.
func StartCall(ctx context.Context, method, path string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "HTTP "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(attrMethod, method),
			attribute.String("url.path", path),
		))
}

// AddAttempt marks a transport send on the call span.
func AddAttempt(span trace.Span, attempt int) {
	span.AddEvent("attempt", trace.WithAttributes(attribute.Int(attrAttempt, attempt)))
}

// EndCall closes the span with the final status or failure kind.
func EndCall(span trace.Span, status int, failureKind string, err error) {
	if status > 0 {
		span.SetAttributes(attribute.Int(attrStatusCode, status))
	}
	if err != nil {
		span.SetAttributes(attribute.String(attrKind, failureKind))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// IsInitialized reports whether the meter has been created.
func IsInitialized() bool {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()
	return metricsInited
}

// ResetForTesting drops the meter so the next record picks up a new provider.
func ResetForTesting() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	meter = nil
	requestDuration = nil
	retryCounter = nil
	cacheCounter = nil
	refreshCounter = nil
	failureCounter = nil
	metricsInited = false
	meterOnce = sync.Once{}
}
