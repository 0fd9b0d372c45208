package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"example.com/backstage/dairy/internal/backend"
	"example.com/backstage/dairy/internal/cache"
	"example.com/backstage/dairy/internal/messaging"
	"example.com/backstage/dairy/internal/metrics"

	"github.com/stretchr/testify/mock"
)

// MockClient is a backend.Client driven by testify expectations
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Configured() bool { return true }

func (m *MockClient) Select(ctx context.Context, table string, q backend.Query) (json.RawMessage, error) {
	args := m.Called(ctx, table, q)
	return raw(args.Get(0)), args.Error(1)
}

func (m *MockClient) Insert(ctx context.Context, table string, rows interface{}) (json.RawMessage, error) {
	args := m.Called(ctx, table, rows)
	return raw(args.Get(0)), args.Error(1)
}

func (m *MockClient) Update(ctx context.Context, table string, filters []backend.Filter, values map[string]interface{}) (json.RawMessage, error) {
	args := m.Called(ctx, table, filters, values)
	return raw(args.Get(0)), args.Error(1)
}

func (m *MockClient) Delete(ctx context.Context, table string, filters []backend.Filter) error {
	return m.Called(ctx, table, filters).Error(0)
}

func (m *MockClient) RPC(ctx context.Context, fn string, params map[string]interface{}) (json.RawMessage, error) {
	args := m.Called(ctx, fn, params)
	return raw(args.Get(0)), args.Error(1)
}

// MockFunctionClient also hosts functions
type MockFunctionClient struct {
	MockClient
}

func (m *MockFunctionClient) Invoke(ctx context.Context, name string, body interface{}) (json.RawMessage, error) {
	args := m.Called(ctx, name, body)
	return raw(args.Get(0)), args.Error(1)
}

func raw(v interface{}) json.RawMessage {
	if s, ok := v.(string); ok {
		return json.RawMessage(s)
	}
	return nil
}

// memoryCache keeps JSON values in a map, like Redis would
type memoryCache struct {
	mu     sync.Mutex
	values map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string][]byte{}}
}

func (c *memoryCache) Enabled() bool { return true }

func (c *memoryCache) Get(ctx context.Context, key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.values[key]
	if !ok {
		return cache.ErrMiss
	}
	return json.Unmarshal(data, value)
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = data
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []messaging.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event messaging.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

var fixedNow = time.Date(2024, 5, 2, 7, 30, 0, 0, time.UTC)

func testDeps() Deps {
	return Deps{
		Metrics:   metrics.NewMetrics(),
		Publisher: &recordingPublisher{},
		Trips:     NewTripTracker(),
		Now:       func() time.Time { return fixedNow },
	}
}

func day(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}
