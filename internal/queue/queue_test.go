// Copyright (c) 2026 Jay (JayyDeveloper). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// LofiMix - Lofi 音乐混流与直播推流工作站

package queue

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type nopLog struct{}

func (nopLog) Info(string, ...interface{})  {}
func (nopLog) Error(string, ...interface{}) {}
func (nopLog) Debug(string, ...interface{}) {}

func validSpec() Spec {
	return Spec{
		Songs:         []string{"song1.mp3", "song2.mp3"},
		ImagePath:     "bg.png",
		TargetSeconds: 600,
		Resolution:    "1920x1080",
		AudioBitrate:  "192k",
		Preset:        "ultrafast",
		Basename:      "mix",
		WorkDir:       "work",
	}
}

type runResult struct {
	out string
	err error
}

// stubRunner hands control of each run to the test: it announces the job
// on begin and blocks until proceed delivers a result or the job is canceled.
type stubRunner struct {
	begin   chan *Job
	proceed chan runResult
}

func newStubRunner() *stubRunner {
	return &stubRunner{
		begin:   make(chan *Job, 16),
		proceed: make(chan runResult),
	}
}

func (r *stubRunner) Run(j *Job) (string, error) {
	r.begin <- j
	select {
	case res := <-r.proceed:
		return res.out, res.err
	case <-j.CancelChan():
		return "", errors.New("terminated")
	}
}

func waitState(t *testing.T, q *Queue, id string, want State) Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		s, err := q.Status(id)
		if err != nil {
			t.Fatalf("status %s: %v", id, err)
		}
		if s.State == want {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	s, _ := q.Status(id)
	t.Fatalf("job %s stuck in %s, want %s", id, s.State, want)
	return Snapshot{}
}

// TestSubmitInvalidSpec rejects bad specs before any record exists.
func TestSubmitInvalidSpec(t *testing.T) {
	q := New(newStubRunner(), nopLog{}, Config{})
	defer q.Shutdown()

	specs := map[string]Spec{}

	one := validSpec()
	one.Songs = one.Songs[:1]
	specs["one song"] = one

	noBG := validSpec()
	noBG.ImagePath = ""
	specs["no background"] = noBG

	both := validSpec()
	both.VideoPath = "loop.mp4"
	specs["both backgrounds"] = both

	target := validSpec()
	target.TargetSeconds = 0
	specs["zero target"] = target

	for name, spec := range specs {
		if _, err := q.Submit(spec); !errors.Is(err, ErrInvalidSpec) {
			t.Fatalf("%s: err = %v, want ErrInvalidSpec", name, err)
		}
	}
	if got := len(q.List()); got != 0 {
		t.Fatalf("rejected submits left %d records", got)
	}
}

// TestFIFOAndQueuePositions runs jobs in submission order and reports
// position 0 for running, 1-based ranks for queued, -1 once finished.
func TestFIFOAndQueuePositions(t *testing.T) {
	r := newStubRunner()
	q := New(r, nopLog{}, Config{})
	defer q.Shutdown()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := q.Submit(validSpec())
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		ids = append(ids, id)
	}

	first := <-r.begin
	if first.ID != ids[0] {
		t.Fatalf("first dispatched = %s, want %s", first.ID, ids[0])
	}
	waitState(t, q, ids[0], StateRunning)

	for i, want := range []int{0, 1, 2} {
		s, err := q.Status(ids[i])
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if s.QueuePosition != want {
			t.Fatalf("job %d position = %d, want %d", i, s.QueuePosition, want)
		}
	}

	r.proceed <- runResult{out: "out1.mp4"}
	waitState(t, q, ids[0], StateDone)

	second := <-r.begin
	if second.ID != ids[1] {
		t.Fatalf("second dispatched = %s, want %s", second.ID, ids[1])
	}
	s := waitState(t, q, ids[1], StateRunning)
	if s.QueuePosition != 0 {
		t.Fatalf("running position = %d, want 0", s.QueuePosition)
	}
	if s, _ := q.Status(ids[0]); s.QueuePosition != -1 {
		t.Fatalf("done position = %d, want -1", s.QueuePosition)
	}
	if s, _ := q.Status(ids[2]); s.QueuePosition != 1 {
		t.Fatalf("tail position = %d, want 1", s.QueuePosition)
	}

	r.proceed <- runResult{out: "out2.mp4"}
	<-r.begin
	r.proceed <- runResult{out: "out3.mp4"}
	waitState(t, q, ids[2], StateDone)
}

// TestCancelQueued transitions synchronously and recomputes positions.
func TestCancelQueued(t *testing.T) {
	r := newStubRunner()
	q := New(r, nopLog{}, Config{})
	defer q.Shutdown()

	var ids []string
	for i := 0; i < 3; i++ {
		id, _ := q.Submit(validSpec())
		ids = append(ids, id)
	}
	<-r.begin
	waitState(t, q, ids[0], StateRunning)

	if err := q.Cancel(ids[1]); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// 排队中取消必须同步生效
	s, _ := q.Status(ids[1])
	if s.State != StateCanceled {
		t.Fatalf("state = %s, want canceled", s.State)
	}
	if s.QueuePosition != -1 {
		t.Fatalf("canceled position = %d, want -1", s.QueuePosition)
	}
	if s, _ := q.Status(ids[2]); s.QueuePosition != 1 {
		t.Fatalf("position after mid-queue cancel = %d, want 1", s.QueuePosition)
	}

	// canceling a terminal job is a no-op
	if err := q.Cancel(ids[1]); err != nil {
		t.Fatalf("repeat cancel: %v", err)
	}

	r.proceed <- runResult{out: "out.mp4"}
	next := <-r.begin
	if next.ID != ids[2] {
		t.Fatalf("dispatched %s after cancel, want %s", next.ID, ids[2])
	}
	r.proceed <- runResult{out: "out.mp4"}
	waitState(t, q, ids[2], StateDone)
}

// TestCancelRunning signals the slot and converges to canceled.
func TestCancelRunning(t *testing.T) {
	r := newStubRunner()
	q := New(r, nopLog{}, Config{})
	defer q.Shutdown()

	id, _ := q.Submit(validSpec())
	j := <-r.begin
	waitState(t, q, id, StateRunning)

	if err := q.Cancel(id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	select {
	case <-j.CancelChan():
	case <-time.After(time.Second):
		t.Fatal("cancel channel not closed")
	}

	s := waitState(t, q, id, StateCanceled)
	if s.Error != "" {
		t.Fatalf("canceled job carries error %q", s.Error)
	}
}

// TestRunnerErrorAndPanic converts failures to errored and keeps dispatching.
func TestRunnerErrorAndPanic(t *testing.T) {
	r := newStubRunner()
	q := New(r, nopLog{}, Config{})
	defer q.Shutdown()

	bad, _ := q.Submit(validSpec())
	<-r.begin
	r.proceed <- runResult{err: errors.New("encoder exit 1")}
	s := waitState(t, q, bad, StateErrored)
	if s.Error != "encoder exit 1" {
		t.Fatalf("error = %q", s.Error)
	}

	panicRunner := &panickyRunner{}
	q2 := New(panicRunner, nopLog{}, Config{})
	defer q2.Shutdown()

	first, _ := q2.Submit(validSpec())
	waitState(t, q2, first, StateErrored)

	panicRunner.calm.Store(true)
	second, _ := q2.Submit(validSpec())
	s = waitState(t, q2, second, StateDone)
	if !s.OutputReady {
		t.Fatal("output not ready after recovery")
	}
}

type panickyRunner struct {
	calm atomic.Bool
}

func (r *panickyRunner) Run(j *Job) (string, error) {
	if !r.calm.Load() {
		panic("boom")
	}
	return "ok.mp4", nil
}

// TestSingleConcurrency verifies at most one job runs at any instant
// under concurrent submission.
type countingRunner struct {
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (r *countingRunner) Run(j *Job) (string, error) {
	n := r.active.Add(1)
	for {
		max := r.maxSeen.Load()
		if n <= max || r.maxSeen.CompareAndSwap(max, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	r.active.Add(-1)
	return fmt.Sprintf("%s.mp4", j.ID), nil
}

func TestSingleConcurrency(t *testing.T) {
	r := &countingRunner{}
	q := New(r, nopLog{}, Config{})
	defer q.Shutdown()

	const n = 20
	var wg sync.WaitGroup
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := q.Submit(validSpec())
			if err != nil {
				t.Errorf("submit: %v", err)
				return
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		waitState(t, q, id, StateDone)
	}
	if max := r.maxSeen.Load(); max != 1 {
		t.Fatalf("observed %d concurrent runs, want 1", max)
	}
}

// TestDownloadPath gates on done state.
func TestDownloadPath(t *testing.T) {
	r := newStubRunner()
	q := New(r, nopLog{}, Config{})
	defer q.Shutdown()

	if _, err := q.DownloadPath("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	id, _ := q.Submit(validSpec())
	<-r.begin
	if _, err := q.DownloadPath(id); !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}

	r.proceed <- runResult{out: "final.mp4"}
	waitState(t, q, id, StateDone)

	path, err := q.DownloadPath(id)
	if err != nil {
		t.Fatalf("download path: %v", err)
	}
	if path != "final.mp4" {
		t.Fatalf("path = %q", path)
	}
}

// TestLogCapAndProgress caps the retained log and tracks the last sample.
func TestLogCapAndProgress(t *testing.T) {
	r := newStubRunner()
	q := New(r, nopLog{}, Config{MaxLogLines: 100})
	defer q.Shutdown()

	id, _ := q.Submit(validSpec())
	j := <-r.begin

	for i := 0; i < 150; i++ {
		j.AppendLine(fmt.Sprintf("noise %d", i))
	}
	j.AppendLine("frame=10 time=00:05:00.00 bitrate=192kbit/s speed=2x")

	s, _ := q.Status(id)
	if len(s.Log) > 100 {
		t.Fatalf("log retained %d lines, want <= 100", len(s.Log))
	}
	if s.Progress == nil || s.Progress.TimeSeconds != 300 {
		t.Fatalf("progress = %+v", s.Progress)
	}
	if s.Percent != 50 {
		t.Fatalf("percent = %v, want 50 (300s of 600s)", s.Percent)
	}

	r.proceed <- runResult{out: "x.mp4"}
	waitState(t, q, id, StateDone)
}
