// Copyright (c) 2026 Jay (JayyDeveloper). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// LofiMix - Lofi 音乐混流与直播推流工作站

// Package queue admits mix jobs and runs them strictly one at a time.
package queue

import (
	"fmt"
	"sort"
	"sync"

	"github.com/JayyDeveloper/lofimix/internal/logger"

	"github.com/lithammer/shortuuid/v4"
)

// Runner executes one job to completion. It appends output lines to the
// job, watches the job's cancel channel, and returns the output path.
type Runner interface {
	Run(job *Job) (outputPath string, err error)
}

// Config for the queue
type Config struct {
	MaxLogLines int
}

// Queue owns the job table, the FIFO admission list, and the single
// dispatch worker. All mutation goes through q.mu; job field access
// additionally takes the job's own lock (q.mu before j.mu, always).
type Queue struct {
	runner Runner
	logger logger.Logger
	maxLog int

	mu      sync.Mutex
	jobs    map[string]*Job
	order   []string // ids still queued, submission order
	running string   // id of the running job, "" when idle

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

// New creates the queue and starts its dispatch worker
func New(runner Runner, log logger.Logger, cfg Config) *Queue {
	maxLog := cfg.MaxLogLines
	if maxLog <= 0 {
		maxLog = 2000
	}
	q := &Queue{
		runner: runner,
		logger: log,
		maxLog: maxLog,
		jobs:   make(map[string]*Job),
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go q.dispatch()
	return q
}

// Shutdown cancels the running job, stops the worker, and waits for it
func (q *Queue) Shutdown() {
	close(q.quit)
	q.mu.Lock()
	running := q.running
	q.mu.Unlock()
	if running != "" {
		q.Cancel(running)
	}
	q.signal()
	<-q.done
}

// Submit validates the spec, creates a queued job, and returns its id.
// Never blocks on the dispatch worker.
func (q *Queue) Submit(spec Spec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}

	j := newJob(shortuuid.New(), spec, q.maxLog)

	q.mu.Lock()
	q.jobs[j.ID] = j
	q.order = append(q.order, j.ID)
	pos := len(q.order)
	q.mu.Unlock()

	q.logger.Info("job %s submitted (queue position %d)", j.ID, pos)
	q.signal()
	return j.ID, nil
}

// Status returns a consistent snapshot of one job
func (q *Queue) Status(id string) (Snapshot, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return q.snapshotLocked(j), nil
}

// List returns snapshots for the dashboard: the running job first, then
// queued jobs in admission order, then finished jobs newest-first.
func (q *Queue) List() []Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Snapshot, 0, len(q.jobs))
	listed := make(map[string]bool, len(q.jobs))

	if q.running != "" {
		if j := q.jobs[q.running]; j != nil {
			out = append(out, q.snapshotLocked(j))
			listed[j.ID] = true
		}
	}
	for _, id := range q.order {
		if j := q.jobs[id]; j != nil {
			out = append(out, q.snapshotLocked(j))
			listed[id] = true
		}
	}

	var finished []*Job
	for id, j := range q.jobs {
		if !listed[id] {
			finished = append(finished, j)
		}
	}
	sort.Slice(finished, func(a, b int) bool {
		return finished[a].CreatedAt.After(finished[b].CreatedAt)
	})
	for _, j := range finished {
		out = append(out, q.snapshotLocked(j))
	}
	return out
}

// Cancel requests cancellation. Queued jobs transition to canceled
// synchronously; the running job gets its slot signaled and converges
// to canceled once the subprocess is gone. Terminal jobs are a no-op.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[id]
	if !ok {
		return ErrNotFound
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state.Terminal() {
		return nil
	}
	if !j.cancelRequested {
		j.cancelRequested = true
		close(j.cancel)
	}
	if j.state == StateQueued {
		j.state = StateCanceled
		j.stage = "Canceled"
		for i, qid := range q.order {
			if qid == id {
				q.order = append(q.order[:i], q.order[i+1:]...)
				break
			}
		}
		q.logger.Info("job %s canceled while queued", id)
	} else {
		q.logger.Info("job %s cancel requested, signaling slot", id)
	}
	return nil
}

// DownloadPath returns the rendered output path for a done job
func (q *Queue) DownloadPath(id string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[id]
	if !ok {
		return "", ErrNotFound
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateDone || j.outputPath == "" {
		return "", ErrNotReady
	}
	return j.outputPath, nil
}

// queue position: 0 running, 1-based rank while queued, -1 terminal
func (q *Queue) snapshotLocked(j *Job) Snapshot {
	pos := -1
	if q.running == j.ID {
		pos = 0
	} else {
		for i, id := range q.order {
			if id == j.ID {
				pos = i + 1
				break
			}
		}
	}
	return j.snapshot(pos)
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// dispatch is the single long-lived worker. It is the only writer of the
// running -> terminal transitions.
func (q *Queue) dispatch() {
	defer close(q.done)
	for {
		select {
		case <-q.quit:
			return
		default:
		}

		j := q.next()
		if j == nil {
			select {
			case <-q.wake:
			case <-q.quit:
				return
			}
			continue
		}

		q.runOne(j)
	}
}

// next pops the first still-queued job and marks it running
func (q *Queue) next() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.order) > 0 {
		id := q.order[0]
		q.order = q.order[1:]

		j := q.jobs[id]
		if j == nil {
			continue
		}
		j.mu.Lock()
		if j.state != StateQueued {
			j.mu.Unlock()
			continue
		}
		j.state = StateRunning
		j.stage = "Starting..."
		j.mu.Unlock()

		q.running = id
		return j
	}
	return nil
}

// runOne blocks until the runner finishes, then applies exactly one
// terminal transition. Runner panics become errored, never a dead worker.
func (q *Queue) runOne(j *Job) {
	q.logger.Info("job %s running", j.ID)

	out, err := q.safeRun(j)

	q.mu.Lock()
	q.running = ""

	j.mu.Lock()
	switch {
	case j.cancelRequested:
		j.state = StateCanceled
		j.stage = "Canceled"
	case err != nil:
		j.state = StateErrored
		j.errMessage = err.Error()
		j.stage = "Failed"
	default:
		j.state = StateDone
		j.outputPath = out
		j.stage = "Done"
	}
	st := j.state
	j.mu.Unlock()
	q.mu.Unlock()

	q.logger.Info("job %s finished: %s", j.ID, st)
}

func (q *Queue) safeRun(j *Job) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("job %s: runner panic: %v", j.ID, r)
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return q.runner.Run(j)
}
