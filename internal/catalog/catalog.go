// Copyright (c) 2026 Jay (JayyDeveloper). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// LofiMix - Lofi 音乐混流与直播推流工作站

// Package catalog tracks videos available for live relay: rendered mix
// outputs and direct uploads. In-memory only, process lifetime.
package catalog

import (
	"errors"
	"os"
	"sort"
	"sync"
	"time"
)

var (
	ErrNotFound  = errors.New("video not found")
	ErrProtected = errors.New("rendered videos cannot be deleted")
)

// Source of a catalog entry
const (
	SourceRendered = "rendered"
	SourceUploaded = "uploaded"
)

// Video is one stream-ready file
type Video struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Path      string `json:"-"`
	Size      int64  `json:"size"`
	Source    string `json:"type"`
	CreatedAt int64  `json:"created_at"`
}

// Catalog is a synchronized id -> video map
type Catalog struct {
	mu     sync.RWMutex
	videos map[string]Video
}

// New creates an empty catalog
func New() *Catalog {
	return &Catalog{videos: make(map[string]Video)}
}

// Add registers a video under the given id
func (c *Catalog) Add(id, name, path, source string) Video {
	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	v := Video{
		ID:        id,
		Name:      name,
		Path:      path,
		Size:      size,
		Source:    source,
		CreatedAt: time.Now().Unix(),
	}
	c.mu.Lock()
	c.videos[id] = v
	c.mu.Unlock()
	return v
}

// Get returns a video by id
func (c *Catalog) Get(id string) (Video, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.videos[id]
	if !ok {
		return Video{}, ErrNotFound
	}
	return v, nil
}

// List returns videos whose files still exist, newest first
func (c *Catalog) List() []Video {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Video, 0, len(c.videos))
	for _, v := range c.videos {
		if _, err := os.Stat(v.Path); err != nil {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].CreatedAt > out[b].CreatedAt
	})
	return out
}

// Delete removes an uploaded video and its file. Rendered outputs stay:
// they belong to their job's work dir.
func (c *Catalog) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.videos[id]
	if !ok {
		return ErrNotFound
	}
	if v.Source != SourceUploaded {
		return ErrProtected
	}
	if err := os.Remove(v.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	delete(c.videos, id)
	return nil
}
