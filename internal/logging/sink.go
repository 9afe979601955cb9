// Package logging provides the async file sink (C1) and the leveled app
// logger built on top of it, alongside the zap-based structured logger used
// for operational output.
package logging

import (
	"bufio"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/orbitcex/matchengine/internal/queue"
)

// sentinel is a per-process, UUID-derived token reserved by every Sink to
// signal end-of-stream to its writer goroutine. Collision with a real log
// line is not just unlikely, it requires forging this process's random
// UUID, matching the "statistically impossible to collide" contract.
var sentinel = "\x00sink-sentinel-" + uuid.New().String()

// Sink owns one append-mode file and one writer goroutine, fed by a bounded
// MPSC queue. AddLog is non-blocking from the caller's perspective: it only
// enqueues.
type Sink struct {
	path string

	mu      sync.Mutex
	q       *queue.MPSC
	done    bool
	started bool
	wg      sync.WaitGroup
}

// NewSink constructs a sink for the given file path. Start must be called
// before AddLog has any effect.
func NewSink(path string, queueCapacity int) *Sink {
	if queueCapacity <= 0 {
		queueCapacity = 4096
	}
	return &Sink{
		path: path,
		q:    queue.New(queueCapacity),
	}
}

// Start opens the file in append mode and spawns the writer goroutine.
func (s *Sink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	s.started = true
	s.wg.Add(1)
	go s.run(f)
	return nil
}

// AddLog enqueues a message. It is dropped silently if the sink has already
// been told to stop. The done check and the enqueue happen under the same
// mutex Stop holds while pushing the sentinel, so a message is either queued
// ahead of the sentinel or dropped.
func (s *Sink) AddLog(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.q.Enqueue(message)
}

// Stop pushes the sentinel, joins the writer, and closes the file. After
// Stop returns, every message enqueued before the call to Stop is on disk.
// Messages enqueued concurrently with or after Stop may be dropped.
func (s *Sink) Stop() {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.q.Enqueue(sentinel)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Sink) run(f *os.File) {
	defer s.wg.Done()
	defer f.Close()
	w := bufio.NewWriter(f)
	for {
		msg := s.q.Dequeue().(string)
		if msg == sentinel {
			w.Flush()
			return
		}
		w.WriteString(msg)
		w.WriteByte('\n')
		w.Flush()
	}
}
