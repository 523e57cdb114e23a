// Copyright (c) 2026 Jay (JayyDeveloper). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// LofiMix - Lofi 音乐混流与直播推流工作站

// Package api exposes the job queue, the video catalog, and the relay
// manager over HTTP.
package api

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/JayyDeveloper/lofimix/internal/catalog"
	"github.com/JayyDeveloper/lofimix/internal/ffmpeg"
	"github.com/JayyDeveloper/lofimix/internal/logger"
	"github.com/JayyDeveloper/lofimix/internal/queue"
	"github.com/JayyDeveloper/lofimix/internal/relay"
	"github.com/JayyDeveloper/lofimix/internal/storage"
	"github.com/JayyDeveloper/lofimix/internal/youtube"
)

// Handler holds dependencies
type Handler struct {
	queue     *queue.Queue
	relay     *relay.Manager
	catalog   *catalog.Catalog
	broadcast youtube.BroadcastService // nil when not authenticated

	audioNames ffmpeg.Validator
	imageNames ffmpeg.Validator
	videoNames ffmpeg.Validator

	workDir   string
	uploadDir string
	logger    logger.Logger
}

// Config for the handler
type Config struct {
	Queue     *queue.Queue
	Relay     *relay.Manager
	Catalog   *catalog.Catalog
	Broadcast youtube.BroadcastService

	AudioNames ffmpeg.Validator
	ImageNames ffmpeg.Validator
	VideoNames ffmpeg.Validator

	WorkDir   string
	UploadDir string
	Logger    logger.Logger
}

// NewHandler creates the API handler
func NewHandler(cfg Config) *Handler {
	return &Handler{
		queue:      cfg.Queue,
		relay:      cfg.Relay,
		catalog:    cfg.Catalog,
		broadcast:  cfg.Broadcast,
		audioNames: cfg.AudioNames,
		imageNames: cfg.ImageNames,
		videoNames: cfg.VideoNames,
		workDir:    cfg.WorkDir,
		uploadDir:  cfg.UploadDir,
		logger:     cfg.Logger,
	}
}

// Register mounts all routes
func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api")
	{
		api.POST("/jobs", h.CreateJob)
		api.GET("/jobs", h.ListJobs)
		api.GET("/jobs/:id", h.GetJob)
		api.POST("/jobs/:id/cancel", h.CancelJob)
		api.GET("/jobs/:id/download", h.DownloadJob)

		api.GET("/videos", h.ListVideos)
		api.POST("/videos", h.UploadVideo)
		api.DELETE("/videos/:id", h.DeleteVideo)

		api.GET("/youtube/status", h.YouTubeAuthStatus)

		api.POST("/streams", h.StartStream)
		api.GET("/streams", h.ListStreams)
		api.GET("/streams/:video_id", h.GetStream)
		api.POST("/streams/:video_id/stop", h.StopStream)
	}
}

func errResp(c *gin.Context, code int, msg, detail string) {
	c.JSON(code, ErrorResponse{Code: code, Message: msg, Detail: detail})
}

var reBasename = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func safeBasename(name, fallback string) string {
	name = reBasename.ReplaceAllString(name, "_")
	if name == "" || name == "_" {
		return fallback
	}
	return name
}

func formInt(c *gin.Context, key string, def int) int {
	v := c.PostForm(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func formStr(c *gin.Context, key, def string) string {
	if v := c.PostForm(key); v != "" {
		return v
	}
	return def
}

// saveUpload validates the filename and writes the file into dir
func (h *Handler) saveUpload(c *gin.Context, f *multipart.FileHeader, v ffmpeg.Validator, dir string) (string, error) {
	name := filepath.Base(f.Filename)
	if v != nil && !v.IsValid(name) {
		return "", errors.New("unsupported file type: " + name)
	}
	dst := filepath.Join(dir, name)
	if err := c.SaveUploadedFile(f, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// CreateJob POST /api/jobs
func (h *Handler) CreateJob(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		errResp(c, http.StatusBadRequest, "Invalid multipart form", err.Error())
		return
	}

	dir, err := storage.JobDir(h.workDir, uuid.NewString())
	if err != nil {
		errResp(c, http.StatusInternalServerError, "Work dir unavailable", err.Error())
		return
	}
	cleanup := func() { os.RemoveAll(dir) }

	var songs []string
	for _, f := range form.File["songs"] {
		p, err := h.saveUpload(c, f, h.audioNames, dir)
		if err != nil {
			cleanup()
			errResp(c, http.StatusBadRequest, "Song upload rejected", err.Error())
			return
		}
		songs = append(songs, p)
	}

	spec := queue.Spec{
		Songs:            songs,
		LogoPosition:     formStr(c, "logo_position", "bottom-right"),
		LogoScalePct:     formInt(c, "logo_scale", 18),
		LogoOpacityPct:   formInt(c, "logo_opacity", 100),
		CrossfadeSeconds: formInt(c, "crossfade_seconds", 5),
		TargetSeconds:    formInt(c, "target_seconds", 0),
		Resolution:       formStr(c, "resolution", "1920x1080"),
		AudioBitrate:     formStr(c, "audio_bitrate", "192k"),
		Preset:           formStr(c, "preset", "veryfast"),
		Basename:         safeBasename(formStr(c, "basename", ""), "lofi_mix"),
		WorkDir:          dir,
	}

	if files := form.File["image_bg"]; len(files) > 0 {
		if spec.ImagePath, err = h.saveUpload(c, files[0], h.imageNames, dir); err != nil {
			cleanup()
			errResp(c, http.StatusBadRequest, "Background image rejected", err.Error())
			return
		}
	}
	if files := form.File["video_bg"]; len(files) > 0 {
		if spec.VideoPath, err = h.saveUpload(c, files[0], h.videoNames, dir); err != nil {
			cleanup()
			errResp(c, http.StatusBadRequest, "Background video rejected", err.Error())
			return
		}
	}
	if files := form.File["logo"]; len(files) > 0 {
		if spec.LogoPath, err = h.saveUpload(c, files[0], h.imageNames, dir); err != nil {
			cleanup()
			errResp(c, http.StatusBadRequest, "Logo rejected", err.Error())
			return
		}
	}

	id, err := h.queue.Submit(spec)
	if err != nil {
		cleanup()
		errResp(c, http.StatusBadRequest, "Invalid job", err.Error())
		return
	}

	snap, _ := h.queue.Status(id)
	c.JSON(http.StatusOK, SubmitResponse{ID: id, QueuePosition: snap.QueuePosition})
}

// ListJobs GET /api/jobs. Logs are omitted unless ?filter=log.
func (h *Handler) ListJobs(c *gin.Context) {
	withLog := c.DefaultQuery("filter", "") == "log"

	snaps := h.queue.List()
	for i := range snaps {
		if !withLog {
			snaps[i].Log = nil
		}
	}
	c.JSON(http.StatusOK, snaps)
}

// GetJob GET /api/jobs/:id
func (h *Handler) GetJob(c *gin.Context) {
	snap, err := h.queue.Status(c.Param("id"))
	if err != nil {
		errResp(c, http.StatusNotFound, "Unknown job ID", err.Error())
		return
	}
	c.JSON(http.StatusOK, snap)
}

// CancelJob POST /api/jobs/:id/cancel
func (h *Handler) CancelJob(c *gin.Context) {
	if err := h.queue.Cancel(c.Param("id")); err != nil {
		errResp(c, http.StatusNotFound, "Unknown job ID", err.Error())
		return
	}
	c.JSON(http.StatusOK, "OK")
}

// DownloadJob GET /api/jobs/:id/download
func (h *Handler) DownloadJob(c *gin.Context) {
	path, err := h.queue.DownloadPath(c.Param("id"))
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			errResp(c, http.StatusNotFound, "Unknown job ID", err.Error())
			return
		}
		errResp(c, http.StatusConflict, "Output not ready", err.Error())
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

// ListVideos GET /api/videos
func (h *Handler) ListVideos(c *gin.Context) {
	c.JSON(http.StatusOK, h.catalog.List())
}

// UploadVideo POST /api/videos
func (h *Handler) UploadVideo(c *gin.Context) {
	f, err := c.FormFile("video")
	if err != nil {
		errResp(c, http.StatusBadRequest, "Missing video file", err.Error())
		return
	}
	name := filepath.Base(f.Filename)
	if h.videoNames != nil && !h.videoNames.IsValid(name) {
		errResp(c, http.StatusBadRequest, "Unsupported file type", name)
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		errResp(c, http.StatusInternalServerError, "Upload dir unavailable", err.Error())
		return
	}

	id := uuid.NewString()
	dst := filepath.Join(h.uploadDir, id+"_"+name)
	if err := c.SaveUploadedFile(f, dst); err != nil {
		errResp(c, http.StatusInternalServerError, "Save failed", err.Error())
		return
	}

	v := h.catalog.Add(id, name, dst, catalog.SourceUploaded)
	h.logger.Info("video %s uploaded (%d bytes)", id, v.Size)
	c.JSON(http.StatusOK, v)
}

// DeleteVideo DELETE /api/videos/:id
func (h *Handler) DeleteVideo(c *gin.Context) {
	err := h.catalog.Delete(c.Param("id"))
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		errResp(c, http.StatusNotFound, "Unknown video ID", err.Error())
	case errors.Is(err, catalog.ErrProtected):
		errResp(c, http.StatusForbidden, "Rendered videos cannot be deleted", err.Error())
	case err != nil:
		errResp(c, http.StatusInternalServerError, "Delete failed", err.Error())
	default:
		c.JSON(http.StatusOK, "OK")
	}
}

// YouTubeAuthStatus GET /api/youtube/status
func (h *Handler) YouTubeAuthStatus(c *gin.Context) {
	if h.broadcast == nil {
		c.JSON(http.StatusOK, YouTubeStatus{Authenticated: false})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	channel, err := h.broadcast.ChannelTitle(ctx)
	if err != nil {
		c.JSON(http.StatusOK, YouTubeStatus{Authenticated: false, Detail: err.Error()})
		return
	}
	c.JSON(http.StatusOK, YouTubeStatus{Authenticated: true, Channel: channel})
}

// StartStream POST /api/streams
func (h *Handler) StartStream(c *gin.Context) {
	var req StreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	v, err := h.catalog.Get(req.VideoID)
	if err != nil {
		errResp(c, http.StatusNotFound, "Unknown video ID", err.Error())
		return
	}

	ingest := req.IngestURL
	broadcastID, watchURL := "", ""
	if ingest == "" {
		if h.broadcast == nil {
			errResp(c, http.StatusUnauthorized, "YouTube not authenticated", youtube.ErrUnauthenticated.Error())
			return
		}
		title := req.Title
		if title == "" {
			title = v.Name
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()

		info, err := h.broadcast.CreateBroadcastAndStream(ctx, title, req.Description, req.Privacy)
		if err != nil {
			errResp(c, http.StatusBadGateway, "Broadcast setup failed", err.Error())
			return
		}
		ingest, broadcastID, watchURL = info.IngestURL, info.BroadcastID, info.WatchURL
	}

	err = h.relay.Start(v.ID, v.Name, v.Path, ingest, broadcastID, watchURL)
	switch {
	case errors.Is(err, relay.ErrAlreadyActive):
		errResp(c, http.StatusConflict, "Stream already active", err.Error())
	case errors.Is(err, relay.ErrSourceMissing):
		errResp(c, http.StatusNotFound, "Video file missing", err.Error())
	case err != nil:
		errResp(c, http.StatusInternalServerError, "Relay start failed", err.Error())
	default:
		c.JSON(http.StatusOK, h.relay.Status(v.ID))
	}
}

// ListStreams GET /api/streams
func (h *Handler) ListStreams(c *gin.Context) {
	c.JSON(http.StatusOK, h.relay.List())
}

// GetStream GET /api/streams/:video_id
func (h *Handler) GetStream(c *gin.Context) {
	c.JSON(http.StatusOK, h.relay.Status(c.Param("video_id")))
}

// StopStream POST /api/streams/:video_id/stop
func (h *Handler) StopStream(c *gin.Context) {
	videoID := c.Param("video_id")
	st := h.relay.Status(videoID)

	if err := h.relay.Stop(videoID); err != nil {
		errResp(c, http.StatusNotFound, "Unknown stream", err.Error())
		return
	}

	// 推流结束后顺带收尾对应的直播间
	if st.BroadcastID != "" && h.broadcast != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
		defer cancel()
		if err := h.broadcast.End(ctx, st.BroadcastID); err != nil {
			h.logger.Error("end broadcast %s: %v", st.BroadcastID, err)
		}
	}
	c.JSON(http.StatusOK, "OK")
}
