// Copyright (c) 2026 Jay (JayyDeveloper). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// LofiMix - Lofi 音乐混流与直播推流工作站

// Package ffmpeg locates the external encoder binaries and hands out
// execution slots bound to them.
package ffmpeg

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/JayyDeveloper/lofimix/internal/logger"
	"github.com/JayyDeveloper/lofimix/internal/process"
)

// FFmpeg manages the encoder and probe binaries
type FFmpeg interface {
	NewSlot() *process.Slot
	Duration(path string) (float64, error)
	Version() string
	Binary() string
}

// Config for FFmpeg
type Config struct {
	Binary      string
	ProbeBinary string
	KillGrace   time.Duration
	Logger      logger.Logger
}

type ffmpeg struct {
	binary  string
	probe   string
	grace   time.Duration
	version string
	logger  logger.Logger
}

// New resolves the binaries and fails fast when the encoder is unusable
func New(config Config) (FFmpeg, error) {
	binary, err := exec.LookPath(config.Binary)
	if err != nil {
		return nil, fmt.Errorf("invalid ffmpeg binary: %w", err)
	}
	probe, err := exec.LookPath(config.ProbeBinary)
	if err != nil {
		return nil, fmt.Errorf("invalid ffprobe binary: %w", err)
	}

	f := &ffmpeg{
		binary: binary,
		probe:  probe,
		grace:  config.KillGrace,
		logger: config.Logger,
	}

	out, err := exec.Command(binary, "-version").Output()
	if err != nil {
		return nil, fmt.Errorf("invalid ffmpeg: %w", err)
	}
	if i := strings.IndexAny(string(out), "\r\n"); i > 0 {
		f.version = string(out)[:i]
	}

	return f, nil
}

func (f *ffmpeg) NewSlot() *process.Slot {
	return process.NewSlot(f.binary, f.grace, f.logger)
}

func (f *ffmpeg) Binary() string {
	return f.binary
}

func (f *ffmpeg) Version() string {
	return f.version
}

// Duration measures a media file in seconds via ffprobe
func (f *ffmpeg) Duration(path string) (float64, error) {
	out, err := exec.Command(f.probe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=nw=1:nk=1",
		path).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	sec, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: unparsable duration %q", path, strings.TrimSpace(string(out)))
	}
	if sec <= 0 {
		return 0, fmt.Errorf("ffprobe %s: non-positive duration", path)
	}
	return sec, nil
}
