package taskgraph_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngld/taskrun/pkg/taskgraph"
)

func TestExecutorWatchCoalescesTriggers(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var runs, running, overlaps int32
	started := make(chan struct{}, 10)
	release := make(chan struct{})

	reg := taskgraph.NewRegistry()
	require.NoError(reg.Register("bundle", nil, taskgraph.StepFunc(func(ctx context.Context) error {
		if atomic.AddInt32(&running, 1) > 1 {
			atomic.AddInt32(&overlaps, 1)
		}
		defer atomic.AddInt32(&running, -1)

		run := atomic.AddInt32(&runs, 1)
		started <- struct{}{}
		if run == 1 {
			<-release
		}
		return nil
	})))

	exec, err := taskgraph.NewExecutor(taskgraph.ExecutorConfig{Registry: reg})
	require.NoError(err)

	source := make(taskgraph.ChanSource)
	watchDone := make(chan error, 1)
	go func() {
		watchDone <- exec.Watch(context.Background(), "bundle", source)
	}()

	<-started
	// the watch loop receives these while the first run is still blocked
	source <- []string{"src/a.ts"}
	source <- []string{"src/b.ts"}
	source <- []string{"src/c.ts"}
	close(release)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("the follow-up run never started")
	}
	close(source)

	select {
	case err := <-watchDone:
		require.NoError(err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch didn't return after the source closed")
	}

	assert.Equal(int32(2), atomic.LoadInt32(&runs))
	assert.Equal(int32(0), atomic.LoadInt32(&overlaps))
}

func TestExecutorWatchContinuesAfterFailure(t *testing.T) {
	require := require.New(t)

	var runs int32
	finished := make(chan struct{}, 10)
	reg := taskgraph.NewRegistry()
	require.NoError(reg.Register("test", nil, taskgraph.StepFunc(func(ctx context.Context) error {
		defer func() { finished <- struct{}{} }()
		if atomic.AddInt32(&runs, 1) == 1 {
			return errors.New("a test failed")
		}
		return nil
	})))

	exec, err := taskgraph.NewExecutor(taskgraph.ExecutorConfig{Registry: reg})
	require.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := make(taskgraph.ChanSource)
	watchDone := make(chan error, 1)
	go func() {
		watchDone <- exec.Watch(ctx, "test", source)
	}()

	<-finished
	source <- []string{"src/fixed.ts"}
	<-finished

	cancel()
	require.NoError(<-watchDone)
	require.Equal(int32(2), atomic.LoadInt32(&runs))
}

func TestExecutorWatchRejectsBrokenGraph(t *testing.T) {
	reg := taskgraph.NewRegistry()
	require.NoError(t, reg.Register("tdd", []string{"missing"}, nil))

	exec, err := taskgraph.NewExecutor(taskgraph.ExecutorConfig{Registry: reg})
	require.NoError(t, err)

	err = exec.Watch(context.Background(), "tdd", make(taskgraph.ChanSource))
	var target *taskgraph.UnknownTaskError
	assert.True(t, errors.As(err, &target))
}
