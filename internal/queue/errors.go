// Copyright (c) 2026 Jay (JayyDeveloper). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// LofiMix - Lofi 音乐混流与直播推流工作站

package queue

import "errors"

var (
	ErrNotFound    = errors.New("job not found")
	ErrInvalidSpec = errors.New("invalid job spec")
	ErrNotReady    = errors.New("output not ready")
)
