package taskgraph

import (
	"sync"
	"time"
)

// Observer is notified about every step the executor runs. Calls can happen concurrently.
type Observer interface {
	TaskStarted(name string)
	TaskFinished(name string, err error, duration time.Duration)
}

type multiObserver []Observer

func (m multiObserver) TaskStarted(name string) {
	for _, o := range m {
		o.TaskStarted(name)
	}
}

func (m multiObserver) TaskFinished(name string, err error, duration time.Duration) {
	for _, o := range m {
		o.TaskFinished(name, err, duration)
	}
}

// TaskResult is the outcome of a single step
type TaskResult struct {
	Name     string
	Success  bool
	Duration time.Duration
	Error    error
}

// Summary collects the results of all steps in the order they finished
type Summary struct {
	lock    sync.Mutex
	results []TaskResult
}

// NewSummary creates an empty summary
func NewSummary() *Summary {
	return &Summary{}
}

// TaskStarted implements Observer
func (s *Summary) TaskStarted(string) {}

// TaskFinished implements Observer
func (s *Summary) TaskFinished(name string, err error, duration time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.results = append(s.results, TaskResult{
		Name:     name,
		Success:  err == nil,
		Duration: duration,
		Error:    err,
	})
}

// Results returns a copy of the collected results
func (s *Summary) Results() []TaskResult {
	s.lock.Lock()
	defer s.lock.Unlock()

	result := make([]TaskResult, len(s.results))
	copy(result, s.results)
	return result
}

// Failed returns the number of failed steps
func (s *Summary) Failed() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	count := 0
	for _, item := range s.results {
		if !item.Success {
			count++
		}
	}
	return count
}

// Reset drops all collected results
func (s *Summary) Reset() {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.results = nil
}
