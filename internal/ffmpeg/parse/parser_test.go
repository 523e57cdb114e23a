// Copyright (c) 2026 Jay (JayyDeveloper). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// LofiMix - Lofi 音乐混流与直播推流工作站

package parse

import "testing"

// TestLineFullProgress parses a typical FFmpeg progress line.
func TestLineFullProgress(t *testing.T) {
	s, ok := Line("frame=120 time=00:01:30.50 bitrate=192kbit/s speed=1.2x")
	if !ok {
		t.Fatal("expected a sample")
	}
	if s.TimeSeconds != 90 {
		t.Fatalf("TimeSeconds = %v, want 90", s.TimeSeconds)
	}
	if s.Bitrate != "192kbit/s" {
		t.Fatalf("Bitrate = %q, want 192kbit/s", s.Bitrate)
	}
	if s.Speed != "1.2x" {
		t.Fatalf("Speed = %q, want 1.2x", s.Speed)
	}
}

// TestLineHoursBeyond24 accepts hour fields above 24.
func TestLineHoursBeyond24(t *testing.T) {
	s, ok := Line("time=25:00:00")
	if !ok {
		t.Fatal("expected a sample")
	}
	if s.TimeSeconds != 90000 {
		t.Fatalf("TimeSeconds = %v, want 90000", s.TimeSeconds)
	}
}

// TestLineNoData returns no sample for lines without a time field.
func TestLineNoData(t *testing.T) {
	for _, line := range []string{
		"",
		"Input #0, mp3, from 'song1.mp3':",
		"frame=120 fps=30",
		"time=garbage",
		"time=1:2:3", // minutes and seconds must be two digits
	} {
		if _, ok := Line(line); ok {
			t.Fatalf("Line(%q) produced a sample, want none", line)
		}
	}
}

// TestLineBestEffortFields keeps the sample when optional fields are absent.
func TestLineBestEffortFields(t *testing.T) {
	s, ok := Line("size=1024kB time=00:00:05.00 bitrate=N/A")
	if !ok {
		t.Fatal("expected a sample")
	}
	if s.TimeSeconds != 5 {
		t.Fatalf("TimeSeconds = %v, want 5", s.TimeSeconds)
	}
	if s.Bitrate != "" || s.Speed != "" {
		t.Fatalf("optional fields should be empty, got %+v", s)
	}
}
