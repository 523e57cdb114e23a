// Copyright (c) 2026 Jay (JayyDeveloper). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// LofiMix - Lofi 音乐混流与直播推流工作站
//
// Package process wraps exec.Cmd for one external media invocation.

package process

import (
	"bufio"
	"os"
	"os/exec"
	"sync"
	"time"
	"unicode/utf8"
)

// Kind classifies how a run ended
type Kind string

const (
	// Success exit code 0
	Success Kind = "success"
	// ProcessFailure non-zero exit
	ProcessFailure Kind = "process_failure"
	// Canceled terminated after a cancel signal
	Canceled Kind = "canceled"
	// SpawnFailure the process never started
	SpawnFailure Kind = "spawn_failure"
)

// Outcome of one Run
type Outcome struct {
	Kind      Kind
	ExitCode  int
	Err       error
	LastLines []string
}

// Logger interface
type Logger interface {
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
	Debug(format string, args ...interface{})
}

// tail retained for diagnostics on failure
const tailLines = 30

// Slot runs exactly one subprocess at a time and owns its lifecycle
type Slot struct {
	binary string
	grace  time.Duration
	logger Logger
	limits Limiter

	mu      sync.Mutex
	running bool
}

// NewSlot creates a slot for the given binary. grace bounds the wait
// between the interrupt signal and the forced kill.
func NewSlot(binary string, grace time.Duration, log Logger) *Slot {
	if grace <= 0 {
		grace = 5 * time.Second
	}
	if log == nil {
		log = &nopLogger{}
	}
	return &Slot{
		binary: binary,
		grace:  grace,
		logger: log,
		limits: NewSysLimiter(),
	}
}

// Usage returns current CPU percent and RSS of the subprocess, zero when idle
func (s *Slot) Usage() (cpu float64, memory uint64) {
	return s.limits.Current()
}

// IsRunning reports whether a subprocess is alive
func (s *Slot) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Run spawns the binary with args, feeds every stderr line to onLine
// synchronously, and blocks until exit. A receive on cancel triggers
// interrupt-then-kill; Run still waits for the process to go away, so
// the outcome is always final.
func (s *Slot) Run(args []string, onLine func(string), cancel <-chan struct{}) Outcome {
	cmd := exec.Command(s.binary, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Outcome{Kind: SpawnFailure, ExitCode: -1, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return Outcome{Kind: SpawnFailure, ExitCode: -1, Err: err}
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.limits.Start(cmd.Process.Pid)
	defer func() {
		s.limits.Stop()
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	done := make(chan struct{})
	var killMu sync.Mutex
	var killTimer *time.Timer
	canceled := false

	go func() {
		select {
		case <-cancel:
			killMu.Lock()
			canceled = true
			killMu.Unlock()
			s.logger.Debug("slot: interrupting pid %d", cmd.Process.Pid)
			if err := cmd.Process.Signal(os.Interrupt); err != nil {
				cmd.Process.Kill()
				return
			}
			killMu.Lock()
			killTimer = time.AfterFunc(s.grace, func() {
				s.logger.Error("slot: pid %d ignored interrupt, killing", cmd.Process.Pid)
				cmd.Process.Kill()
			})
			killMu.Unlock()
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(stderr)
	scanner.Split(scanLine)

	var tail []string
	for scanner.Scan() {
		line := scanner.Text()
		tail = append(tail, line)
		if len(tail) > tailLines {
			tail = tail[1:]
		}
		if onLine != nil {
			onLine(line)
		}
	}

	waitErr := cmd.Wait()
	close(done)

	killMu.Lock()
	if killTimer != nil {
		killTimer.Stop()
	}
	wasCanceled := canceled
	killMu.Unlock()

	if wasCanceled {
		return Outcome{Kind: Canceled, ExitCode: exitCode(waitErr), Err: waitErr, LastLines: tail}
	}
	if waitErr == nil {
		return Outcome{Kind: Success, LastLines: tail}
	}
	return Outcome{Kind: ProcessFailure, ExitCode: exitCode(waitErr), Err: waitErr, LastLines: tail}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exiterr, ok := err.(*exec.ExitError); ok {
		return exiterr.ExitCode()
	}
	return -1
}

// scanLine splits on both \n and \r so FFmpeg's in-place progress
// rewrites surface as individual lines.
func scanLine(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) {
		r, w := utf8.DecodeRune(data[start:])
		if r != '\n' && r != '\r' {
			break
		}
		start += w
	}

	for i := start; i < len(data); {
		r, w := utf8.DecodeRune(data[i:])
		if r == '\n' || r == '\r' {
			return i + w, data[start:i], nil
		}
		i += w
	}

	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}
	return start, nil, nil
}

type nopLogger struct{}

func (l *nopLogger) Info(format string, args ...interface{})  {}
func (l *nopLogger) Error(format string, args ...interface{}) {}
func (l *nopLogger) Debug(format string, args ...interface{}) {}
