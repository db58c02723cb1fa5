package shutdown

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignalFiresOnce(t *testing.T) {
	s := NewSignal()
	assert.False(t, s.Triggered())
	assert.Equal(t, "", s.Reason())

	assert.True(t, s.Trigger("idle"))
	assert.False(t, s.Trigger("again"))
	assert.True(t, s.Triggered())
	assert.Equal(t, "idle", s.Reason())
}

func TestSignalBroadcastsToAllWaiters(t *testing.T) {
	s := NewSignal()
	var woke atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-s.Done()
			woke.Add(1)
		}()
	}
	s.Trigger("test")

	waited := make(chan struct{})
	go func() { wg.Wait(); close(waited) }()
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("waiters not released")
	}
	assert.Equal(t, int32(10), woke.Load())
}

func TestSignalConcurrentTriggers(t *testing.T) {
	s := NewSignal()
	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Trigger("race") {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load())
}
