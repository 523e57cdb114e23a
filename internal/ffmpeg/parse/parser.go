// Copyright (c) 2026 Jay (JayyDeveloper). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// LofiMix - Lofi 音乐混流与直播推流工作站

// Package parse extracts progress samples from FFmpeg stderr lines.
package parse

import (
	"regexp"
	"strconv"
)

// Sample is one parsed progress report
type Sample struct {
	TimeSeconds float64 `json:"time_seconds"`
	Bitrate     string  `json:"bitrate,omitempty"`
	Speed       string  `json:"speed,omitempty"`
}

var (
	// 小时位不限两位，长视频会超过 24:00:00
	reTime    = regexp.MustCompile(`time=\s*([0-9]+):([0-9]{2}):([0-9]{2})(?:\.[0-9]+)?`)
	reBitrate = regexp.MustCompile(`bitrate=\s*([0-9.]+[a-zA-Z]*its/s)`)
	reSpeed   = regexp.MustCompile(`speed=\s*([0-9.]+x)`)
)

// Line parses one stderr line. ok is false when the line carries no
// time= field; bitrate and speed are best-effort and may stay empty.
// Stateless and safe for concurrent use.
func Line(line string) (Sample, bool) {
	m := reTime.FindStringSubmatch(line)
	if m == nil {
		return Sample{}, false
	}

	h, err := strconv.Atoi(m[1])
	if err != nil {
		return Sample{}, false
	}
	mm, _ := strconv.Atoi(m[2])
	ss, _ := strconv.Atoi(m[3])

	s := Sample{TimeSeconds: float64(h*3600 + mm*60 + ss)}

	if b := reBitrate.FindStringSubmatch(line); b != nil {
		s.Bitrate = b[1]
	}
	if sp := reSpeed.FindStringSubmatch(line); sp != nil {
		s.Speed = sp[1]
	}

	return s, true
}
