// Package watch turns file system changes into re-run triggers for taskgraph.Executor.Watch
package watch

import (
	"sync"
	"time"

	"github.com/cortesi/moddwatch"
	"github.com/rotisserie/eris"
)

// Config describes which files to watch
type Config struct {
	Root string
	// Include and Exclude are moddwatch patterns (** matches across directories) relative to Root
	Include []string
	Exclude []string
	// Lull is how long the file system has to be quiet before a batch of changes is reported
	Lull time.Duration
}

// Source reports batches of changed files. It implements taskgraph.TriggerSource.
type Source struct {
	watcher  *moddwatch.Watcher
	triggers chan []string
	done     chan struct{}
	stopOnce sync.Once
}

// New starts watching the configured files
func New(cfg Config) (*Source, error) {
	if cfg.Root == "" {
		cfg.Root = "."
	}

	if len(cfg.Include) == 0 {
		cfg.Include = []string{"**"}
	}

	mods := make(chan *moddwatch.Mod, 1)
	watcher, err := moddwatch.Watch(cfg.Root, cfg.Include, cfg.Exclude, cfg.Lull, mods)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to watch %s", cfg.Root)
	}

	s := &Source{
		watcher:  watcher,
		triggers: make(chan []string),
		done:     make(chan struct{}),
	}

	go s.forward(mods)
	return s, nil
}

func (s *Source) forward(mods <-chan *moddwatch.Mod) {
	defer close(s.triggers)

	for {
		select {
		case <-s.done:
			return
		case mod, ok := <-mods:
			if !ok {
				return
			}
			if mod == nil || mod.Empty() {
				continue
			}

			select {
			case s.triggers <- mod.All():
			case <-s.done:
				return
			}
		}
	}
}

// Triggers returns the channel receiving the changed paths. It's closed once the source is closed.
func (s *Source) Triggers() <-chan []string {
	return s.triggers
}

// Close stops watching
func (s *Source) Close() error {
	s.stopOnce.Do(func() {
		close(s.done)
		s.watcher.Stop()
	})

	return nil
}
