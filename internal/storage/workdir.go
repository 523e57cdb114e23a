// Copyright (c) 2026 Jay (JayyDeveloper). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// LofiMix - Lofi 音乐混流与直播推流工作站

// Package storage manages per-job work directories.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/JayyDeveloper/lofimix/internal/logger"
)

// Prefix marks directories owned by this service so the stale sweep
// never touches foreign files.
const Prefix = "lofimix_"

// JobDir creates and returns the work directory for one job id
func JobDir(base, jobID string) (string, error) {
	dir := filepath.Join(base, Prefix+jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	return dir, nil
}

// CleanupStale removes prefixed work directories older than maxAge
func CleanupStale(base string, maxAge time.Duration, log logger.Logger) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		if !e.IsDir() || len(e.Name()) < len(Prefix) || e.Name()[:len(Prefix)] != Prefix {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		dir := filepath.Join(base, e.Name())
		if err := os.RemoveAll(dir); err != nil {
			log.Error("cleanup %s: %v", dir, err)
			continue
		}
		log.Debug("removed stale work dir %s", dir)
	}
}
