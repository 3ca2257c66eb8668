package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertMetricLine matches one exposition line by name, a partial label pattern and
// value. The exporter adds otel_scope_* labels, hence the regex.
func assertMetricLine(t *testing.T, output, name, labels, value string) {
	t.Helper()
	pattern := name + `\{[^}]*` + labels + `[^}]*\} ` + value
	assert.Regexp(t, pattern, output)
}

func scrape(t *testing.T, provider *Provider) string {
	t.Helper()
	w := httptest.NewRecorder()
	provider.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func newTestProvider(t *testing.T, namespace string) *Provider {
	t.Helper()
	provider, err := NewProvider(namespace)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	})
	return provider
}

func TestProvider_ObserveState(t *testing.T) {
	t.Run("Success_GaugesFollowSources", func(t *testing.T) {
		provider := newTestProvider(t, "engine")

		depth := QueueDepth{Pending: 3, DeadLettered: 1, Staged: 2}
		link := LinkState{Reachable: false, Attempt: 4}
		require.NoError(t, provider.ObserveState(StateSources{
			Queue: func(ctx context.Context) (QueueDepth, error) { return depth, nil },
			Link:  func() LinkState { return link },
		}))

		output := scrape(t, provider)
		assertMetricLine(t, output, `engine_queue_operations`, `state="pending"`, `3`)
		assertMetricLine(t, output, `engine_queue_operations`, `state="dead_lettered"`, `1`)
		assertMetricLine(t, output, `engine_queue_operations`, `state="staged"`, `2`)
		assertMetricLine(t, output, `engine_remote_reachable`, ``, `0`)
		assertMetricLine(t, output, `engine_reconnect_attempts`, ``, `4`)

		// Sampled per scrape: the operator sees the queue drain and the link recover.
		depth = QueueDepth{}
		link = LinkState{Reachable: true}
		output = scrape(t, provider)
		assertMetricLine(t, output, `engine_queue_operations`, `state="pending"`, `0`)
		assertMetricLine(t, output, `engine_remote_reachable`, ``, `1`)
		assertMetricLine(t, output, `engine_reconnect_attempts`, ``, `0`)
	})

	t.Run("Success_QueueErrorKeepsLinkGauges", func(t *testing.T) {
		provider := newTestProvider(t, "engine")

		require.NoError(t, provider.ObserveState(StateSources{
			Queue: func(ctx context.Context) (QueueDepth, error) {
				return QueueDepth{}, errors.New("database is locked")
			},
			Link: func() LinkState { return LinkState{Reachable: true} },
		}))

		output := scrape(t, provider)
		assert.NotContains(t, output, `engine_queue_operations{`)
		assertMetricLine(t, output, `engine_remote_reachable`, ``, `1`)
	})

	t.Run("Success_ReplacesPreviousSources", func(t *testing.T) {
		provider := newTestProvider(t, "engine")

		var firstCalls atomic.Int32
		require.NoError(t, provider.ObserveState(StateSources{
			Queue: func(ctx context.Context) (QueueDepth, error) {
				firstCalls.Add(1)
				return QueueDepth{Pending: 9}, nil
			},
		}))
		require.NoError(t, provider.ObserveState(StateSources{
			Queue: func(ctx context.Context) (QueueDepth, error) { return QueueDepth{Pending: 5}, nil },
		}))

		output := scrape(t, provider)
		assertMetricLine(t, output, `engine_queue_operations`, `state="pending"`, `5`)
		assert.NotRegexp(t, `engine_queue_operations\{[^}]*state="pending"[^}]*\} 9`, output)
		assert.Zero(t, firstCalls.Load())
	})

	t.Run("Success_NilSourcesExportNothing", func(t *testing.T) {
		provider := newTestProvider(t, "engine")

		require.NoError(t, provider.ObserveState(StateSources{}))

		output := scrape(t, provider)
		assert.NotContains(t, output, "engine_queue_operations{")
		assert.NotContains(t, output, "engine_remote_reachable{")
	})
}

func TestProvider_Shutdown(t *testing.T) {
	t.Run("Success_UnregistersGauges", func(t *testing.T) {
		provider, err := NewProvider("engine")
		require.NoError(t, err)

		require.NoError(t, provider.ObserveState(StateSources{
			Link: func() LinkState { return LinkState{} },
		}))

		assert.NoError(t, provider.Shutdown(context.Background()))
		assert.Nil(t, provider.registration)
	})

	t.Run("Success_ShutdownNilProvider", func(t *testing.T) {
		provider := &Provider{}
		assert.NoError(t, provider.Shutdown(context.Background()))
	})
}
