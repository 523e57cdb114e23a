// Copyright (c) 2026 Jay (JayyDeveloper). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// LofiMix - Lofi 音乐混流与直播推流工作站

package mix

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/JayyDeveloper/lofimix/internal/catalog"
	"github.com/JayyDeveloper/lofimix/internal/ffmpeg"
	"github.com/JayyDeveloper/lofimix/internal/logger"
	"github.com/JayyDeveloper/lofimix/internal/process"
	"github.com/JayyDeveloper/lofimix/internal/queue"
)

var errCanceled = errors.New("canceled")

// Pipeline implements queue.Runner with three encoder invocations per job
type Pipeline struct {
	ff      ffmpeg.FFmpeg
	catalog *catalog.Catalog
	logger  logger.Logger
}

// NewPipeline creates the runner
func NewPipeline(ff ffmpeg.FFmpeg, cat *catalog.Catalog, log logger.Logger) *Pipeline {
	return &Pipeline{ff: ff, catalog: cat, logger: log}
}

// Run renders one job inside its work dir and registers the output for
// streaming on success.
func (p *Pipeline) Run(j *queue.Job) (string, error) {
	spec := j.Spec

	// Step 1: 交叉淡入淡出拼接歌单
	j.SetStage("Step 1: Crossfading tracks...")
	playlist := filepath.Join(spec.WorkDir, "playlist.mp3")
	if err := p.runStep(j, crossfadeArgs(spec, playlist), playlist); err != nil {
		return "", err
	}

	// Step 2: 循环到目标时长
	j.SetStage("Step 2: Looping playlist...")
	playlistSec, err := p.ff.Duration(playlist)
	if err != nil {
		return "", fmt.Errorf("could not measure playlist duration: %w", err)
	}

	target := spec.TargetSeconds
	if target < 60 {
		target = 60
	}
	loops := int(math.Ceil(float64(target)/playlistSec)) - 1
	if loops < 0 {
		loops = 0
	}

	longPath := filepath.Join(spec.WorkDir, "long_playlist.mp3")
	if loops > 0 {
		if err := p.runStep(j, loopArgs(loops, playlist, longPath), longPath); err != nil {
			return "", err
		}
	} else {
		if err := copyFile(playlist, longPath); err != nil {
			return "", err
		}
	}

	// Step 3: 合成视频
	j.SetStage("Step 3: Rendering video...")
	outPath := filepath.Join(spec.WorkDir, spec.Basename+".mp4")
	if err := p.runStep(j, renderArgs(spec, longPath, outPath), outPath); err != nil {
		return "", err
	}

	p.catalog.Add(j.ID, filepath.Base(outPath), outPath, catalog.SourceRendered)
	p.logger.Info("job %s rendered %s", j.ID, outPath)
	return outPath, nil
}

// runStep executes one encoder invocation through a fresh slot and
// verifies the expected output exists and is non-empty.
func (p *Pipeline) runStep(j *queue.Job, args []string, wantOutput string) error {
	if j.Canceled() {
		return errCanceled
	}

	slot := p.ff.NewSlot()
	j.AttachSlot(slot)
	out := slot.Run(args, j.AppendLine, j.CancelChan())
	j.DetachSlot()

	switch out.Kind {
	case process.Success:
		info, err := os.Stat(wantOutput)
		if err != nil || info.Size() == 0 {
			return fmt.Errorf("encoder reported success but %s is missing or empty", filepath.Base(wantOutput))
		}
		return nil
	case process.Canceled:
		return errCanceled
	case process.SpawnFailure:
		return fmt.Errorf("spawn encoder: %w", out.Err)
	default:
		msg := ""
		if n := len(out.LastLines); n > 0 {
			msg = ": " + strings.Join(out.LastLines[maxInt(0, n-3):], " | ")
		}
		return fmt.Errorf("encoder exit %d%s", out.ExitCode, msg)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
