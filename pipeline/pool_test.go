package pipeline

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsSubmittedTasks(t *testing.T) {

	p := NewPool(2, zerolog.Nop())

	var ran atomic.Int32

	for i := 0; i < 10; i++ {
		require.True(t, p.Submit(func() { ran.Add(1) }))
	}

	p.Close()

	assert.Equal(t, int32(10), ran.Load())
}

func TestPoolSubmitNeverBlocks(t *testing.T) {

	p := NewPool(1, zerolog.Nop())

	started := make(chan struct{})
	release := make(chan struct{})

	// occupy the only worker
	require.True(t, p.Submit(func() {
		close(started)
		<-release
	}))
	<-started

	// fill the backlog
	for i := 0; i < cap(p.tasks); i++ {
		require.True(t, p.Submit(func() {}))
	}

	// a full backlog rejects instead of blocking the frame path
	done := make(chan bool, 1)

	go func() {
		done <- p.Submit(func() {})
	}()

	select {
	case accepted := <-done:
		assert.False(t, accepted)
	case <-time.After(time.Second):
		t.Fatal("submit blocked on a full backlog")
	}

	close(release)
	p.Close()
}

func TestPoolSurvivesTaskPanic(t *testing.T) {

	p := NewPool(1, zerolog.Nop())

	require.True(t, p.Submit(func() { panic("boom") }))

	var ran atomic.Bool

	require.True(t, p.Submit(func() { ran.Store(true) }))

	p.Close()

	assert.True(t, ran.Load())
}
