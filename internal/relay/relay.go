// Copyright (c) 2026 Jay (JayyDeveloper). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// LofiMix - Lofi 音乐混流与直播推流工作站

// Package relay pushes local videos to remote ingest endpoints on an
// endless loop, one session per target video. Relay sessions live
// outside the job queue: distinct targets may run concurrently.
package relay

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/JayyDeveloper/lofimix/internal/ffmpeg"
	"github.com/JayyDeveloper/lofimix/internal/ffmpeg/parse"
	"github.com/JayyDeveloper/lofimix/internal/logger"
	"github.com/JayyDeveloper/lofimix/internal/process"
)

var (
	ErrAlreadyActive = errors.New("relay already active for this video")
	ErrSourceMissing = errors.New("source video file missing")
	ErrNotFound      = errors.New("no relay session for this video")
)

// Session status strings
const (
	StatusStarting = "starting"
	StatusLive     = "live"
	StatusStopping = "stopping"
	StatusStopped  = "stopped"
	StatusError    = "error"
)

func activeStatus(s string) bool {
	return s == StatusStarting || s == StatusLive || s == StatusStopping
}

// 固定推流档位，与 3000k/60 帧关键帧间隔的平台推荐值一致
func pushArgs(videoPath, ingestURL string) []string {
	return []string{
		"-re",
		"-stream_loop", "-1",
		"-i", videoPath,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-b:v", "3000k",
		"-maxrate", "3000k",
		"-bufsize", "6000k",
		"-pix_fmt", "yuv420p",
		"-g", "60",
		"-c:a", "aac",
		"-b:a", "192k",
		"-ar", "44100",
		"-f", "flv",
		ingestURL,
	}
}

// Session is one live relay: a looping push subprocess and its status
type Session struct {
	VideoID     string
	VideoName   string
	BroadcastID string
	WatchURL    string
	StartedAt   time.Time

	mu       sync.Mutex
	status   string
	lastLine string

	slot     *process.Slot
	cancel   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Status snapshot of one session
type Status struct {
	Active      bool    `json:"active"`
	VideoID     string  `json:"video_id,omitempty"`
	VideoName   string  `json:"video_name,omitempty"`
	Status      string  `json:"status,omitempty"`
	BroadcastID string  `json:"broadcast_id,omitempty"`
	WatchURL    string  `json:"watch_url,omitempty"`
	StartedAt   int64   `json:"started_at,omitempty"`
	LastLine    string  `json:"last_output,omitempty"`
	CPU         float64 `json:"cpu_usage,omitempty"`
	Memory      uint64  `json:"memory_bytes,omitempty"`
}

// Manager owns all relay sessions, keyed by target video id
type Manager struct {
	logger logger.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	// seams for tests; default to the real encoder
	newSlot func() *process.Slot
	argsFn  func(videoPath, ingestURL string) []string
}

// NewManager creates the relay manager
func NewManager(ff ffmpeg.FFmpeg, log logger.Logger) *Manager {
	return &Manager{
		logger:   log,
		sessions: make(map[string]*Session),
		newSlot:  ff.NewSlot,
		argsFn:   pushArgs,
	}
}

// Start spawns a relay for videoID. Fails when the target already has an
// active session or the source file is gone; no session is created then.
func (m *Manager) Start(videoID, videoName, videoPath, ingestURL, broadcastID, watchURL string) error {
	if _, err := os.Stat(videoPath); err != nil {
		return ErrSourceMissing
	}

	m.mu.Lock()
	if s, ok := m.sessions[videoID]; ok {
		s.mu.Lock()
		active := activeStatus(s.status)
		s.mu.Unlock()
		if active {
			m.mu.Unlock()
			return ErrAlreadyActive
		}
	}
	s := &Session{
		VideoID:     videoID,
		VideoName:   videoName,
		BroadcastID: broadcastID,
		WatchURL:    watchURL,
		StartedAt:   time.Now(),
		status:      StatusStarting,
		slot:        m.newSlot(),
		cancel:      make(chan struct{}),
		done:        make(chan struct{}),
	}
	m.sessions[videoID] = s
	m.mu.Unlock()

	m.logger.Info("relay %s starting -> %s", videoID, ingestURL)
	go m.run(s, videoPath, ingestURL)
	return nil
}

func (m *Manager) run(s *Session, videoPath, ingestURL string) {
	defer close(s.done)

	out := s.slot.Run(m.argsFn(videoPath, ingestURL), func(line string) {
		s.mu.Lock()
		s.lastLine = line
		// 首个进度行视为推流已建立，尽力而为
		if s.status == StatusStarting {
			if _, ok := parse.Line(line); ok {
				s.status = StatusLive
			}
		}
		s.mu.Unlock()
	}, s.cancel)

	s.mu.Lock()
	switch {
	case out.Kind == process.Canceled || s.status == StatusStopping:
		s.status = StatusStopped
	case out.Kind == process.Success:
		// the push loops forever, a clean exit still ends the stream
		s.status = StatusStopped
	default:
		s.status = StatusError
		if out.Err != nil {
			s.lastLine = out.Err.Error()
		}
	}
	st := s.status
	s.mu.Unlock()

	m.logger.Info("relay %s ended: %s", s.VideoID, st)
}

// Stop terminates the relay subprocess (interrupt, bounded grace, kill)
// and waits for it to go away, releasing the target id for reuse.
func (m *Manager) Stop(videoID string) error {
	m.mu.Lock()
	s, ok := m.sessions[videoID]
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	s.mu.Lock()
	if !activeStatus(s.status) {
		s.mu.Unlock()
		return nil
	}
	s.status = StatusStopping
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.cancel) })
	<-s.done
	return nil
}

// Status reports one target's session; Active false for unknown targets
func (m *Manager) Status(videoID string) Status {
	m.mu.Lock()
	s, ok := m.sessions[videoID]
	m.mu.Unlock()
	if !ok {
		return Status{Active: false}
	}
	return s.snapshot()
}

// List returns snapshots of every known session
func (m *Manager) List() []Status {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	out := make([]Status, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.snapshot())
	}
	return out
}

// StopAll terminates every active session, used at shutdown
func (m *Manager) StopAll() {
	for _, s := range m.List() {
		if s.Active {
			m.Stop(s.VideoID)
		}
	}
}

func (s *Session) snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Active:      activeStatus(s.status),
		VideoID:     s.VideoID,
		VideoName:   s.VideoName,
		Status:      s.status,
		BroadcastID: s.BroadcastID,
		WatchURL:    s.WatchURL,
		StartedAt:   s.StartedAt.Unix(),
		LastLine:    s.lastLine,
	}
	if st.Active {
		st.CPU, st.Memory = s.slot.Usage()
	}
	return st
}
