package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusinessMetrics_SyncPass(t *testing.T) {
	provider := newTestProvider(t, "pos")
	bm, err := NewBusinessMetrics(provider.MeterProvider(), "pos")
	require.NoError(t, err)

	ctx := context.Background()

	// One pass that drained part of the queue and refreshed the catalog.
	bm.RecordOperation(ctx, "outbox", "queue_drain", "success")
	bm.RecordDuration(ctx, "outbox", "queue_drain", 40*time.Millisecond, "success")
	bm.RecordItems(ctx, "outbox", "succeeded", 7)
	bm.RecordItems(ctx, "outbox", "failed", 2)
	bm.RecordItems(ctx, "outbox", "dead_lettered", 1)
	bm.RecordItems(ctx, "catalog", "product", 120)
	bm.RecordOperation(ctx, "sync", "phase_reference_refresh", "success")
	bm.RecordOperation(ctx, "sync", "sync_pass", "success")
	bm.RecordDuration(ctx, "sync", "sync_pass", 2*time.Second, "success")

	// A second pass with the remote authority down.
	bm.RecordOperation(ctx, "outbox", "queue_drain", "error")
	bm.RecordItems(ctx, "outbox", "failed", 1)
	bm.RecordOperation(ctx, "sync", "sync_pass", "error")
	bm.RecordDuration(ctx, "sync", "sync_pass", 20*time.Second, "error")

	output := scrape(t, provider)

	assertMetricLine(t, output, `pos_operations_total`,
		`domain="outbox".*operation="queue_drain".*status="success"`, `1`)
	assertMetricLine(t, output, `pos_operations_total`,
		`domain="outbox".*operation="queue_drain".*status="error"`, `1`)
	assertMetricLine(t, output, `pos_operations_total`,
		`domain="sync".*operation="phase_reference_refresh".*status="success"`, `1`)

	assertMetricLine(t, output, `pos_sync_items_total`, `domain="outbox".*item="succeeded"`, `7`)
	assertMetricLine(t, output, `pos_sync_items_total`, `domain="outbox".*item="failed"`, `3`)
	assertMetricLine(t, output, `pos_sync_items_total`, `domain="outbox".*item="dead_lettered"`, `1`)
	assertMetricLine(t, output, `pos_sync_items_total`, `domain="catalog".*item="product"`, `120`)

	assertMetricLine(t, output, `pos_operation_duration_seconds_count`,
		`domain="sync".*operation="sync_pass".*status="error"`, `1`)
	// A 20s pass lands in the 30s bucket, not the 15s one.
	assertMetricLine(t, output, `pos_operation_duration_seconds_bucket`,
		`domain="sync".*le="15".*operation="sync_pass".*status="error"`, `0`)
	assertMetricLine(t, output, `pos_operation_duration_seconds_bucket`,
		`domain="sync".*le="30".*operation="sync_pass".*status="error"`, `1`)
}

func TestBusinessMetrics_RecordItemsSkipsEmpty(t *testing.T) {
	provider := newTestProvider(t, "pos")
	bm, err := NewBusinessMetrics(provider.MeterProvider(), "pos")
	require.NoError(t, err)

	bm.RecordItems(context.Background(), "outbox", "dead_lettered", 0)
	bm.RecordItems(context.Background(), "outbox", "failed", -1)

	assert.NotContains(t, scrape(t, provider), `pos_sync_items_total{`)
}

func TestNewNoOpBusinessMetrics(t *testing.T) {
	noOp := NewNoOpBusinessMetrics()
	assert.IsType(t, &NoOpBusinessMetrics{}, noOp)

	ctx := context.Background()
	noOp.RecordOperation(ctx, "outbox", "queue_drain", "success")
	noOp.RecordDuration(ctx, "sync", "sync_pass", time.Second, "error")
	noOp.RecordItems(ctx, "catalog", "product", 10)
}
