package jobqueue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/arsound/arsound/internal/pkg/testutil"
)

type countingFlusher struct {
	calls atomic.Int32
}

func (f *countingFlusher) Flush(ctx context.Context) error {
	f.calls.Add(1)
	return nil
}

func TestNewManagerDefaults(t *testing.T) {
	q := NewQueue(nil, 1)
	m := NewManager(q, nil, 0)

	assert.Same(t, q, m.GetQueue())
	assert.Equal(t, 5*time.Second, m.flushInterval)
	assert.NotNil(t, m.stopCh)
	assert.False(t, m.IsRunning())
}

func TestManager_StopWithoutStart(t *testing.T) {
	m := NewManager(NewQueue(nil, 1), nil, time.Second)
	assert.NotPanics(t, m.Stop)
	assert.False(t, m.IsRunning())
}

func TestManager_StartStopFlushesCounters(t *testing.T) {
	rdb := testutil.NewRedis(t)
	flusher := &countingFlusher{}
	m := NewManager(NewQueue(rdb, 1), flusher, 10*time.Millisecond)

	m.Start()
	assert.True(t, m.IsRunning())
	assert.True(t, m.GetQueue().IsRunning())

	assert.True(t, waitFor(func() bool { return flusher.calls.Load() >= 2 }, 2*time.Second))

	m.Stop()
	assert.False(t, m.IsRunning())
	assert.False(t, m.GetQueue().IsRunning())

	after := flusher.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, flusher.calls.Load(), "no flushes after stop")

	// restartable
	m.Start()
	assert.True(t, m.IsRunning())
	m.Stop()
}
