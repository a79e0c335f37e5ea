package main

import (
	"context"
	"sync"
	"time"

	"github.com/HefnySco/droneengage-mavlink/internal/logging"
)

const (
	// effectQueueSize bounds pending store and registry writes.
	effectQueueSize = 64
	// effectTimeout bounds a single store or registry write.
	effectTimeout = 2 * time.Second
)

type effect struct {
	name string
	fn   func(ctx context.Context) error
}

// effectWorker runs store and registry writes off the inbound path. Jobs
// run one at a time in submission order; a full queue drops new jobs.
type effectWorker struct {
	logger  *logging.Logger
	jobs    chan effect
	timeout time.Duration

	wg   sync.WaitGroup
	once sync.Once
}

func newEffectWorker(logger *logging.Logger, size int, timeout time.Duration) *effectWorker {
	w := &effectWorker{
		logger:  logger,
		jobs:    make(chan effect, size),
		timeout: timeout,
	}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *effectWorker) run() {
	defer w.wg.Done()
	for e := range w.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		if err := e.fn(ctx); err != nil {
			w.logger.Warnf("[main] %s: %v", e.name, err)
		}
		cancel()
	}
}

// submit never blocks. It reports whether the job was queued.
func (w *effectWorker) submit(name string, fn func(ctx context.Context) error) bool {
	select {
	case w.jobs <- effect{name: name, fn: fn}:
		return true
	default:
		w.logger.Warnf("[main] effect queue full, dropping %s", name)
		return false
	}
}

// close drains queued jobs and stops the worker. No submit may follow.
func (w *effectWorker) close() {
	w.once.Do(func() {
		close(w.jobs)
	})
	w.wg.Wait()
}
