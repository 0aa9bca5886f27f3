package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type memoryStorage struct {
	mu      sync.Mutex
	batches [][]Record
	err     error
}

func (m *memoryStorage) WriteBatch(ctx context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, append([]Record(nil), records...))
	return m.err
}

func (m *memoryStorage) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func TestAgentFSFlushesOnStop(t *testing.T) {
	store := &memoryStorage{}
	fs := NewAgentFS(store, zap.NewNop(), AgentFSOptions{FlushInterval: time.Hour})
	fs.Start()

	for i := 0; i < 5; i++ {
		fs.Log(Record{ID: "r", Tool: "list_apps"})
	}
	fs.Stop()

	assert.Equal(t, 5, store.total())
}

func TestAgentFSFlushesByBatchSize(t *testing.T) {
	store := &memoryStorage{}
	fs := NewAgentFS(store, zap.NewNop(), AgentFSOptions{BatchSize: 2, FlushInterval: time.Hour})
	fs.Start()

	for i := 0; i < 4; i++ {
		fs.Log(Record{ID: "r"})
	}
	assert.Eventually(t, func() bool { return store.total() == 4 }, time.Second, 5*time.Millisecond)
	fs.Stop()
}

func TestAgentFSDropsAfterStop(t *testing.T) {
	store := &memoryStorage{err: errors.New("db down")}
	fs := NewAgentFS(store, zap.NewNop(), AgentFSOptions{})
	fs.Start()
	fs.Log(Record{ID: "a"})
	fs.Stop()
	fs.Stop()

	assert.NotPanics(t, func() { fs.Log(Record{ID: "late"}) })
	assert.Equal(t, 1, store.total())
}

func TestAgentFSConcurrentLogAndStop(t *testing.T) {
	store := &memoryStorage{}
	fs := NewAgentFS(store, zap.NewNop(), AgentFSOptions{BufferSize: 64, FlushInterval: time.Millisecond})
	fs.Start()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				fs.Log(Record{ID: "r"})
			}
		}()
	}
	time.Sleep(time.Millisecond)
	assert.NotPanics(t, fs.Stop)
	wg.Wait()

	assert.LessOrEqual(t, store.total(), 8*200)
}
