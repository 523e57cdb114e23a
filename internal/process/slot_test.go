// Copyright (c) 2026 Jay (JayyDeveloper). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// LofiMix - Lofi 音乐混流与直播推流工作站

package process

import (
	"strings"
	"testing"
	"time"
)

func shSlot(t *testing.T, grace time.Duration) *Slot {
	t.Helper()
	return NewSlot("/bin/sh", grace, nil)
}

// TestRunSuccess captures every emitted line and classifies exit 0.
func TestRunSuccess(t *testing.T) {
	s := shSlot(t, time.Second)

	var lines []string
	out := s.Run([]string{"-c", "echo one >&2; echo two >&2"}, func(l string) {
		lines = append(lines, l)
	}, nil)

	if out.Kind != Success {
		t.Fatalf("Kind = %s, want success (err=%v)", out.Kind, out.Err)
	}
	if len(lines) != 2 || lines[0] != "one" || lines[1] != "two" {
		t.Fatalf("lines = %v", lines)
	}
}

// TestRunCarriageReturnLines splits \r-rewritten progress output into lines.
func TestRunCarriageReturnLines(t *testing.T) {
	s := shSlot(t, time.Second)

	var lines []string
	out := s.Run([]string{"-c", `printf 'a\rb\rc\n' >&2`}, func(l string) {
		lines = append(lines, l)
	}, nil)

	if out.Kind != Success {
		t.Fatalf("Kind = %s, want success", out.Kind)
	}
	if strings.Join(lines, ",") != "a,b,c" {
		t.Fatalf("lines = %v, want [a b c]", lines)
	}
}

// TestRunProcessFailure reports the exit code and keeps the tail.
func TestRunProcessFailure(t *testing.T) {
	s := shSlot(t, time.Second)

	out := s.Run([]string{"-c", "echo boom >&2; exit 3"}, nil, nil)

	if out.Kind != ProcessFailure {
		t.Fatalf("Kind = %s, want process_failure", out.Kind)
	}
	if out.ExitCode != 3 {
		t.Fatalf("ExitCode = %d, want 3", out.ExitCode)
	}
	if len(out.LastLines) != 1 || out.LastLines[0] != "boom" {
		t.Fatalf("LastLines = %v", out.LastLines)
	}
}

// TestRunSpawnFailure surfaces a missing binary without a job state.
func TestRunSpawnFailure(t *testing.T) {
	s := NewSlot("/nonexistent/encoder-binary", time.Second, nil)

	out := s.Run([]string{"-h"}, nil, nil)

	if out.Kind != SpawnFailure {
		t.Fatalf("Kind = %s, want spawn_failure", out.Kind)
	}
	if out.Err == nil {
		t.Fatal("expected spawn error")
	}
}

// TestRunCancel terminates within the grace-plus-kill window.
func TestRunCancel(t *testing.T) {
	s := shSlot(t, 500*time.Millisecond)

	cancel := make(chan struct{})
	go func() {
		time.Sleep(100 * time.Millisecond)
		close(cancel)
	}()

	start := time.Now()
	// 忽略中断信号，强杀路径必须触发
	out := s.Run([]string{"-c", "trap '' INT; sleep 30 2>/dev/null"}, nil, cancel)
	elapsed := time.Since(start)

	if out.Kind != Canceled {
		t.Fatalf("Kind = %s, want canceled", out.Kind)
	}
	if elapsed > 5*time.Second {
		t.Fatalf("cancel took %v, want bounded by grace", elapsed)
	}
	if s.IsRunning() {
		t.Fatal("subprocess still running after cancel")
	}
}

// TestRunCancelGraceful ends promptly when the process honors the interrupt.
func TestRunCancelGraceful(t *testing.T) {
	s := shSlot(t, 5*time.Second)

	cancel := make(chan struct{})
	go func() {
		time.Sleep(100 * time.Millisecond)
		close(cancel)
	}()

	start := time.Now()
	out := s.Run([]string{"-c", "sleep 30"}, nil, cancel)
	if out.Kind != Canceled {
		t.Fatalf("Kind = %s, want canceled", out.Kind)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("graceful cancel took %v", elapsed)
	}
}
