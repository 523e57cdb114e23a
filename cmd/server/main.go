// Copyright (c) 2026 Jay (JayyDeveloper). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// LofiMix - Lofi 音乐混流与直播推流工作站

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/JayyDeveloper/lofimix/internal/api"
	"github.com/JayyDeveloper/lofimix/internal/catalog"
	"github.com/JayyDeveloper/lofimix/internal/config"
	"github.com/JayyDeveloper/lofimix/internal/ffmpeg"
	"github.com/JayyDeveloper/lofimix/internal/logger"
	"github.com/JayyDeveloper/lofimix/internal/mix"
	"github.com/JayyDeveloper/lofimix/internal/queue"
	"github.com/JayyDeveloper/lofimix/internal/relay"
	"github.com/JayyDeveloper/lofimix/internal/storage"
	"github.com/JayyDeveloper/lofimix/internal/youtube"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	bind := flag.String("bind", "", "Bind address (overrides config)")
	ffmpegBin := flag.String("ffmpeg", "", "FFmpeg binary path (overrides config)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("Load config: %v", err)
		}
	}

	bindAddr := cfg.Server.Bind
	if *bind != "" {
		bindAddr = *bind
	}
	ffmpegPath := cfg.FFmpeg.Path
	if *ffmpegBin != "" {
		ffmpegPath = *ffmpegBin
	}

	logg := logger.New(logger.Config{
		Service:        "lofimix",
		Level:          cfg.Log.Level,
		Format:         cfg.Log.Format,
		FilePath:       cfg.Log.FilePath,
		FileMaxSizeMB:  cfg.Log.FileMaxSizeMB,
		FileMaxBackups: cfg.Log.FileMaxBackups,
		FileMaxAgeDays: cfg.Log.FileMaxAgeDays,
	})

	ff, err := ffmpeg.New(ffmpeg.Config{
		Binary:      ffmpegPath,
		ProbeBinary: cfg.FFmpeg.ProbePath,
		KillGrace:   time.Duration(cfg.Jobs.KillGraceSeconds) * time.Second,
		Logger:      logg,
	})
	if err != nil {
		log.Fatalf("FFmpeg init: %v", err)
	}
	logg.Info("using %s", ff.Version())

	workDir := cfg.ResolveWorkDir()
	storage.CleanupStale(workDir, time.Duration(cfg.Storage.StaleAfterDays)*24*time.Hour, logg)

	cat := catalog.New()
	q := queue.New(mix.NewPipeline(ff, cat, logg), logg, queue.Config{MaxLogLines: cfg.Jobs.MaxLogLines})
	defer q.Shutdown()

	relays := relay.NewManager(ff, logg)
	defer relays.StopAll()

	var broadcast youtube.BroadcastService
	svc, err := youtube.New(context.Background(), cfg.YouTube.ClientSecretsFile, cfg.YouTube.TokenFile, logg)
	switch {
	case err == nil:
		broadcast = svc
	case errors.Is(err, youtube.ErrUnauthenticated):
		logg.Info("youtube credentials not found, broadcast provisioning disabled")
	default:
		log.Fatalf("YouTube init: %v", err)
	}

	audioNames, _ := ffmpeg.NewValidator([]string{`\.(mp3|wav|flac|m4a|ogg|aac)$`}, nil)
	imageNames, _ := ffmpeg.NewValidator([]string{`\.(png|jpe?g|webp)$`}, nil)
	videoNames, _ := ffmpeg.NewValidator([]string{`\.(mp4|mov|mkv|webm)$`}, nil)

	handler := api.NewHandler(api.Config{
		Queue:      q,
		Relay:      relays,
		Catalog:    cat,
		Broadcast:  broadcast,
		AudioNames: audioNames,
		ImageNames: imageNames,
		VideoNames: videoNames,
		WorkDir:    workDir,
		UploadDir:  cfg.Storage.UploadDir,
		Logger:     logg,
	})

	r := gin.Default()
	r.Use(gin.Recovery(), cors.Default())
	r.MaxMultipartMemory = cfg.Server.MaxUploadMB << 20

	// 静态前端
	webDir := "web"
	indexPath := filepath.Join(webDir, "index.html")
	r.GET("/", func(c *gin.Context) { c.File(indexPath) })
	r.Static("/static", filepath.Join(webDir, "static"))

	handler.Register(r)

	log.Printf("LofiMix listening on %s (Web UI: /)", bindAddr)
	if err := r.Run(bindAddr); err != nil {
		log.Fatalf("Server: %v", err)
	}
}
