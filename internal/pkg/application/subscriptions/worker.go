package subscriptions

import (
	"fmt"
	"sync"
)

type action func()

// worker executes queued actions, one at a time, on a single goroutine
type worker struct {
	mu      sync.Mutex
	started bool

	queue chan action
}

func newWorker() *worker {
	return &worker{
		queue: make(chan action, 32),
	}
}

func (w *worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return fmt.Errorf("already started")
	}

	w.started = true

	go w.run()

	return nil
}

func (w *worker) Stop() error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = false
	w.mu.Unlock()

	// Create a result channel so that we can wait for completion
	resultChan := make(chan bool)

	w.queue <- func() {
		resultChan <- true
	}

	// blocking read until our action has been processed
	<-resultChan

	// nil tells the goroutine to go out of business
	w.queue <- nil

	return nil
}

func (w *worker) enqueue(a action) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return false
	}

	w.queue <- a
	return true
}

func (w *worker) run() {
	for a := range w.queue {
		if a == nil {
			return
		}

		a()
	}
}
