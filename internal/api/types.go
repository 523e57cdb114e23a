// Copyright (c) 2026 Jay (JayyDeveloper). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// LofiMix - Lofi 音乐混流与直播推流工作站

package api

// ErrorResponse for API errors
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// SubmitResponse returned by job submission
type SubmitResponse struct {
	ID            string `json:"id"`
	QueuePosition int    `json:"queue_position"`
}

// StreamRequest starts a relay for a catalog video. With IngestURL set
// the broadcast provisioning step is skipped and the push goes straight
// to the given endpoint.
type StreamRequest struct {
	VideoID     string `json:"video_id" binding:"required"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Privacy     string `json:"privacy"`
	IngestURL   string `json:"ingest_url"`
}

// YouTubeStatus for GET /api/youtube/status
type YouTubeStatus struct {
	Authenticated bool   `json:"authenticated"`
	Channel       string `json:"channel,omitempty"`
	Detail        string `json:"detail,omitempty"`
}
