package pubsub

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBroker_PublishSubscribe(t *testing.T) {
	b := NewBroker[string]()

	var got []string
	dispose := b.Subscribe(func(v string) { got = append(got, v) })
	assert.Equal(t, 1, b.Len())

	b.Publish("connection-lost")
	b.Publish("server-reachable")
	assert.Equal(t, []string{"connection-lost", "server-reachable"}, got)

	dispose()
	dispose()
	assert.Equal(t, 0, b.Len())

	b.Publish("ignored")
	assert.Len(t, got, 2)
}

func TestBroker_DisposeFromCallback(t *testing.T) {
	b := NewBroker[int]()

	calls := 0
	var dispose Disposer
	dispose = b.Subscribe(func(int) {
		calls++
		dispose()
	})

	b.Publish(1)
	b.Publish(2)
	assert.Equal(t, 1, calls)
}

func TestBroker_Clear(t *testing.T) {
	b := NewBroker[int]()
	b.Subscribe(func(int) {})
	b.Subscribe(func(int) {})

	b.Clear()
	assert.Equal(t, 0, b.Len())
}

func TestBroker_ConcurrentUse(t *testing.T) {
	b := NewBroker[int]()

	var mu sync.Mutex
	total := 0
	b.Subscribe(func(v int) {
		mu.Lock()
		total += v
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dispose := b.Subscribe(func(int) {})
			b.Publish(1)
			dispose()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, total)
	assert.Equal(t, 1, b.Len())
}
