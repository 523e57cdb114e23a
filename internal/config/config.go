// Copyright (c) 2026 Jay (JayyDeveloper). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// LofiMix - Lofi 音乐混流与直播推流工作站

package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	FFmpeg  FFmpegConfig  `yaml:"ffmpeg"`
	Storage StorageConfig `yaml:"storage"`
	Jobs    JobsConfig    `yaml:"jobs"`
	YouTube YouTubeConfig `yaml:"youtube"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Bind        string `yaml:"bind"`
	MaxUploadMB int64  `yaml:"max_upload_mb"`
}

// FFmpegConfig FFmpeg 配置
type FFmpegConfig struct {
	Path      string `yaml:"path"`
	ProbePath string `yaml:"probe_path"`
}

// StorageConfig 工作目录配置
type StorageConfig struct {
	WorkDir      string `yaml:"work_dir"`       // 为空时使用系统临时目录
	UploadDir    string `yaml:"upload_dir"`     // 直播素材上传目录
	StaleAfterDays int  `yaml:"stale_after_days"` // 过期任务目录清理
}

// JobsConfig 任务队列配置
type JobsConfig struct {
	KillGraceSeconds int `yaml:"kill_grace_seconds"`
	MaxLogLines      int `yaml:"max_log_lines"`
}

// YouTubeConfig 推流平台凭据文件
type YouTubeConfig struct {
	ClientSecretsFile string `yaml:"client_secrets_file"`
	TokenFile         string `yaml:"token_file"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level          string `yaml:"level"`
	Format         string `yaml:"format"` // json|console
	FilePath       string `yaml:"file_path"`
	FileMaxSizeMB  int    `yaml:"file_max_size_mb"`
	FileMaxBackups int    `yaml:"file_max_backups"`
	FileMaxAgeDays int    `yaml:"file_max_age_days"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Bind: ":5050", MaxUploadMB: 2048},
		FFmpeg:  FFmpegConfig{Path: "ffmpeg", ProbePath: "ffprobe"},
		Storage: StorageConfig{WorkDir: "", UploadDir: "uploads", StaleAfterDays: 2},
		Jobs:    JobsConfig{KillGraceSeconds: 5, MaxLogLines: 2000},
		YouTube: YouTubeConfig{ClientSecretsFile: "youtube_config.json", TokenFile: "youtube_token.json"},
		Log:     LogConfig{Level: "info", Format: "console"},
	}
}

// Load 从 YAML 文件加载配置
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// 填充空值
	if cfg.Server.Bind == "" {
		cfg.Server.Bind = ":5050"
	}
	if cfg.Server.MaxUploadMB <= 0 {
		cfg.Server.MaxUploadMB = 2048
	}
	if cfg.FFmpeg.Path == "" {
		cfg.FFmpeg.Path = "ffmpeg"
	}
	if cfg.FFmpeg.ProbePath == "" {
		cfg.FFmpeg.ProbePath = "ffprobe"
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = "uploads"
	}
	if cfg.Storage.StaleAfterDays <= 0 {
		cfg.Storage.StaleAfterDays = 2
	}
	if cfg.Jobs.KillGraceSeconds <= 0 {
		cfg.Jobs.KillGraceSeconds = 5
	}
	if cfg.Jobs.MaxLogLines <= 0 {
		cfg.Jobs.MaxLogLines = 2000
	}

	return cfg, nil
}

// ResolveWorkDir 返回任务工作目录根
func (c *Config) ResolveWorkDir() string {
	if c.Storage.WorkDir != "" {
		return c.Storage.WorkDir
	}
	return filepath.Join(os.TempDir())
}
