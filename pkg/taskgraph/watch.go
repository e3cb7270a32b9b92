package taskgraph

import (
	"context"
)

// TriggerSource delivers change notifications. Each message lists the changed paths. Closing the channel
// ends the watch.
type TriggerSource interface {
	Triggers() <-chan []string
}

// Watch runs the named task once and then again whenever source reports a change. Runs never overlap:
// changes reported during a run are merged into a single follow-up run. Failed runs are logged and the
// watch continues. Watch returns once ctx is done or the source is closed and the last run finished.
func (e *Executor) Watch(ctx context.Context, name string, source TriggerSource) error {
	// report broken graphs right away instead of on every change
	if _, err := plan(e.registry, name); err != nil {
		return err
	}

	logger := Log(ctx)
	done := make(chan error, 1)
	running := false
	pending := false
	closed := false

	start := func() {
		running = true
		go func() {
			done <- e.Run(ctx, name)
		}()
	}

	start()
	triggers := source.Triggers()
	for {
		select {
		case <-ctx.Done():
			if running {
				<-done
			}
			return nil

		case changed, ok := <-triggers:
			if !ok {
				triggers = nil
				closed = true
				if !running {
					return nil
				}
				continue
			}

			logger.Info().Str("task", name).Strs("files", changed).Msg("change detected")
			if running {
				pending = true
				continue
			}
			start()

		case err := <-done:
			running = false
			if err != nil {
				logger.Error().Str("task", name).Err(err).Msg("run failed")
			} else {
				logger.Info().Str("task", name).Msg("finished, waiting for changes")
			}

			if pending && ctx.Err() == nil {
				pending = false
				start()
				continue
			}

			if closed {
				return nil
			}
		}
	}
}

// ChanSource is a TriggerSource backed by a plain channel
type ChanSource chan []string

// Triggers implements TriggerSource
func (c ChanSource) Triggers() <-chan []string {
	return c
}
