// Package tracking records OpenTelemetry metrics for cache store backends.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	storeMeterName = "httppipe/cache"

	// Follows db.client.operation.duration from the OTel database conventions.
	metricStoreOperationDuration = "db.client.operation.duration"

	metricStoreHit      = "cache.hit"
	metricStoreMiss     = "cache.miss"
	metricStoreEviction = "cache.eviction"

	attrDBSystem       = "db.system.name"
	attrDBOperation    = "db.operation.name"
	attrErrorType      = "error.type"
	attrCacheHitStatus = "cache.hit"
)

// Backend names used as db.system.name.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Store operation names.
const (
	OpGet    = "get"
	OpSet    = "set"
	OpRemove = "remove"
	OpClear  = "clear"
	OpPing   = "ping"
)

var (
	storeMeter    metric.Meter
	meterOnce     sync.Once
	meterInitMu   sync.Mutex
	metricsInited bool

	operationDuration metric.Float64Histogram
	hitCounter        metric.Int64Counter
	missCounter       metric.Int64Counter
	evictionCounter   metric.Int64Counter
)

func logMetricError(metricName string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize cache metric %s: %v\n", metricName, err)
	}
}

func initStoreMeter() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	if storeMeter != nil {
		return
	}

	storeMeter = otel.Meter(storeMeterName)

	var err error

	operationDuration, err = storeMeter.Float64Histogram(
		metricStoreOperationDuration,
		metric.WithDescription("Duration of response cache store operations"),
		metric.WithUnit("s"),
	)
	logMetricError(metricStoreOperationDuration, err)

	hitCounter, err = storeMeter.Int64Counter(
		metricStoreHit,
		metric.WithDescription("Number of store lookups that found an entry"),
		metric.WithUnit("{hit}"),
	)
	logMetricError(metricStoreHit, err)

	missCounter, err = storeMeter.Int64Counter(
		metricStoreMiss,
		metric.WithDescription("Number of store lookups that found nothing"),
		metric.WithUnit("{miss}"),
	)
	logMetricError(metricStoreMiss, err)

	evictionCounter, err = storeMeter.Int64Counter(
		metricStoreEviction,
		metric.WithDescription("Number of entries evicted to stay within capacity"),
		metric.WithUnit("{entry}"),
	)
	logMetricError(metricStoreEviction, err)

	metricsInited = true
}

func ensureStoreMeterInitialized() {
	meterOnce.Do(initStoreMeter)
}

// RecordStoreOperation records duration and, for lookups, hit or miss.
func RecordStoreOperation(ctx context.Context, backend, operation string, duration time.Duration, hit bool, err error) {
	ensureStoreMeterInitialized()

	attrs := []attribute.KeyValue{
		attribute.String(attrDBSystem, backend),
		attribute.String(attrDBOperation, operation),
	}
	if operation == OpGet {
		attrs = append(attrs, attribute.Bool(attrCacheHitStatus, hit))
	}
	if err != nil {
		attrs = append(attrs, attribute.String(attrErrorType, classifyError(err)))
	}

	if operationDuration != nil {
		operationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}

	if operation != OpGet || err != nil {
		return
	}
	if hit {
		if hitCounter != nil {
			hitCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
	} else if missCounter != nil {
		missCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordEviction counts a capacity eviction.
func RecordEviction(ctx context.Context, backend string) {
	ensureStoreMeterInitialized()

	if evictionCounter != nil {
		evictionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String(attrDBSystem, backend)))
	}
}

func classifyError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection"):
		return "connection_error"
	case strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "closed"):
		return "closed"
	case strings.Contains(msg, "cbor"):
		return "codec"
	default:
		return "error"
	}
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

	storeMeter = nil
	operationDuration = nil
	hitCounter = nil
	missCounter = nil
	evictionCounter = nil
	metricsInited = false
	meterOnce = sync.Once{}
}
