package portfolio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedSource struct {
	mu    sync.Mutex
	calls int
	steps []func() ([]map[string]any, error)
}

func (s *scriptedSource) FetchPositions(ctx context.Context) ([]map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	return s.steps[i]()
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestMonitor_RefreshOnce(t *testing.T) {
	store := newTestStore(t)
	src := &scriptedSource{steps: []func() ([]map[string]any, error){
		func() ([]map[string]any, error) {
			return []map[string]any{{"symbol": "A", "quantity": 50, "status": "OPEN"}}, nil
		},
	}}
	m := NewMonitor(src, store, time.Second)

	require.NoError(t, m.RefreshOnce(context.Background()))
	open, err := store.HasOpenPosition("A")
	require.NoError(t, err)
	assert.True(t, open)
	assert.False(t, m.LastRefresh().IsZero())
}

func TestMonitor_FailureKeepsStateAndLoopRuns(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Replace([]Position{{Symbol: "KEEP", Status: "OPEN"}}))

	src := &scriptedSource{steps: []func() ([]map[string]any, error){
		func() ([]map[string]any, error) { return nil, errors.New("broker down") },
		func() ([]map[string]any, error) { return nil, errors.New("broker down") },
		func() ([]map[string]any, error) {
			return []map[string]any{{"symbol": "NEW", "status": "OPEN"}}, nil
		},
	}}
	m := NewMonitor(src, store, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return src.Calls() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.GreaterOrEqual(t, m.Failures(), int64(2))
	open, err := store.HasOpenPosition("NEW")
	require.NoError(t, err)
	assert.True(t, open)
}

func TestMonitor_FailedCycleDoesNotClear(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Replace([]Position{{Symbol: "KEEP", Status: "OPEN"}}))
	src := &scriptedSource{steps: []func() ([]map[string]any, error){
		func() ([]map[string]any, error) { return nil, errors.New("timeout") },
	}}
	m := NewMonitor(src, store, time.Second)

	assert.Error(t, m.RefreshOnce(context.Background()))
	open, err := store.HasOpenPosition("KEEP")
	require.NoError(t, err)
	assert.True(t, open)
	assert.True(t, m.LastRefresh().IsZero())
}
