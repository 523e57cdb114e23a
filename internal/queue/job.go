// Copyright (c) 2026 Jay (JayyDeveloper). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// LofiMix - Lofi 音乐混流与直播推流工作站

package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/JayyDeveloper/lofimix/internal/ffmpeg/parse"
	"github.com/JayyDeveloper/lofimix/internal/process"
)

// State of a job. Transitions are monotonic: queued -> running -> done |
// errored | canceled, plus the queued -> canceled shortcut.
type State string

const (
	StateQueued   State = "queued"
	StateRunning  State = "running"
	StateDone     State = "done"
	StateErrored  State = "errored"
	StateCanceled State = "canceled"
)

// Terminal reports whether the state has no outgoing transitions
func (s State) Terminal() bool {
	return s == StateDone || s == StateErrored || s == StateCanceled
}

// 上传表单允许 2~10 首歌
const (
	MinSongs = 2
	MaxSongs = 10
)

// Spec describes one mix job, immutable after submission
type Spec struct {
	Songs            []string
	ImagePath        string // still background, exclusive with VideoPath
	VideoPath        string // looping background video
	LogoPath         string
	LogoPosition     string // top-left|top-right|bottom-left|bottom-right
	LogoScalePct     int
	LogoOpacityPct   int
	CrossfadeSeconds int
	TargetSeconds    int
	Resolution       string
	AudioBitrate     string
	Preset           string
	Basename         string
	WorkDir          string
}

// Validate rejects specs before any job record is created
func (s *Spec) Validate() error {
	if len(s.Songs) < MinSongs || len(s.Songs) > MaxSongs {
		return fmt.Errorf("%w: need %d to %d songs, got %d", ErrInvalidSpec, MinSongs, MaxSongs, len(s.Songs))
	}
	if s.ImagePath == "" && s.VideoPath == "" {
		return fmt.Errorf("%w: need a background image or video", ErrInvalidSpec)
	}
	if s.ImagePath != "" && s.VideoPath != "" {
		return fmt.Errorf("%w: pick either a background image or a video, not both", ErrInvalidSpec)
	}
	if s.TargetSeconds <= 0 {
		return fmt.Errorf("%w: target duration must be positive", ErrInvalidSpec)
	}
	if s.CrossfadeSeconds < 0 {
		return fmt.Errorf("%w: crossfade must not be negative", ErrInvalidSpec)
	}
	if s.Basename == "" {
		return fmt.Errorf("%w: output basename required", ErrInvalidSpec)
	}
	if s.WorkDir == "" {
		return fmt.Errorf("%w: work dir required", ErrInvalidSpec)
	}
	return nil
}

// Job is one submitted unit of work and its mutable state
type Job struct {
	ID        string
	Spec      Spec
	CreatedAt time.Time

	maxLog int

	mu              sync.Mutex
	state           State
	stage           string
	logLines        []string
	sample          *parse.Sample
	outputPath      string
	errMessage      string
	cancelRequested bool
	cancel          chan struct{}
	slot            *process.Slot
}

func newJob(id string, spec Spec, maxLog int) *Job {
	return &Job{
		ID:        id,
		Spec:      spec,
		CreatedAt: time.Now(),
		maxLog:    maxLog,
		state:     StateQueued,
		stage:     "Queued...",
		cancel:    make(chan struct{}),
	}
}

// SetStage updates the human-readable step description
func (j *Job) SetStage(stage string) {
	j.mu.Lock()
	j.stage = stage
	j.mu.Unlock()
}

// AppendLine records one subprocess output line and feeds the progress
// parser. The log is capped: past maxLog lines only the newest half is kept.
func (j *Job) AppendLine(line string) {
	j.mu.Lock()
	j.logLines = append(j.logLines, line)
	if len(j.logLines) > j.maxLog {
		keep := j.maxLog / 2
		j.logLines = append([]string(nil), j.logLines[len(j.logLines)-keep:]...)
	}
	if s, ok := parse.Line(line); ok {
		j.sample = &s
	}
	j.mu.Unlock()
}

// CancelChan is closed once cancellation has been requested
func (j *Job) CancelChan() <-chan struct{} {
	return j.cancel
}

// Canceled reports whether cancellation has been requested
func (j *Job) Canceled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelRequested
}

// AttachSlot exposes the live execution slot so status snapshots can
// report subprocess CPU/RSS while the job runs
func (j *Job) AttachSlot(s *process.Slot) {
	j.mu.Lock()
	j.slot = s
	j.mu.Unlock()
}

// DetachSlot clears the slot reference after a run
func (j *Job) DetachSlot() {
	j.mu.Lock()
	j.slot = nil
	j.mu.Unlock()
}

// Snapshot is an immutable copy of a job's observable fields
type Snapshot struct {
	ID              string        `json:"id"`
	State           State         `json:"state"`
	Stage           string        `json:"stage"`
	QueuePosition   int           `json:"queue_position"`
	Progress        *parse.Sample `json:"progress,omitempty"`
	Percent         float64       `json:"percent"`
	TargetSeconds   int           `json:"target_seconds"`
	Log             []string      `json:"log,omitempty"`
	OutputReady     bool          `json:"output_ready"`
	Error           string        `json:"error,omitempty"`
	CancelRequested bool          `json:"cancel_requested"`
	CreatedAt       int64         `json:"created_at"`
	CPU             float64       `json:"cpu_usage"`
	Memory          uint64        `json:"memory_bytes"`
}

func (j *Job) snapshot(pos int) Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	s := Snapshot{
		ID:              j.ID,
		State:           j.state,
		Stage:           j.stage,
		QueuePosition:   pos,
		TargetSeconds:   j.Spec.TargetSeconds,
		Log:             append([]string(nil), j.logLines...),
		OutputReady:     j.outputPath != "",
		Error:           j.errMessage,
		CancelRequested: j.cancelRequested,
		CreatedAt:       j.CreatedAt.Unix(),
	}
	if j.sample != nil {
		sample := *j.sample
		s.Progress = &sample
		if j.Spec.TargetSeconds > 0 {
			pct := sample.TimeSeconds / float64(j.Spec.TargetSeconds) * 100
			if pct > 100 {
				pct = 100
			}
			s.Percent = pct
		}
	}
	if j.slot != nil {
		s.CPU, s.Memory = j.slot.Usage()
	}
	return s
}
