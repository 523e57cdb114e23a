// Copyright (c) 2026 Jay (JayyDeveloper). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// LofiMix - Lofi 音乐混流与直播推流工作站

// Package youtube provisions live broadcasts and their ingest streams
// through the YouTube Data API. Tokens are expected to exist already;
// the interactive OAuth consent flow happens outside the server.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/JayyDeveloper/lofimix/internal/logger"
)

// ErrUnauthenticated no usable credentials on disk
var ErrUnauthenticated = errors.New("youtube: not authenticated")

// BroadcastInfo identifies a provisioned broadcast and where to push
type BroadcastInfo struct {
	BroadcastID string `json:"broadcast_id"`
	StreamID    string `json:"stream_id"`
	IngestURL   string `json:"-"`
	StreamKey   string `json:"-"`
	WatchURL    string `json:"watch_url"`
}

// BroadcastService is the platform-side half of going live
type BroadcastService interface {
	// CreateBroadcastAndStream makes a broadcast plus a variable-rate
	// RTMP stream, binds them, and returns the ingest endpoint.
	CreateBroadcastAndStream(ctx context.Context, title, description, privacy string) (*BroadcastInfo, error)
	// Transition moves a broadcast between lifecycle phases
	// (testing, live, complete).
	Transition(ctx context.Context, broadcastID, phase string) error
	// End completes a broadcast; already-finished broadcasts are fine.
	End(ctx context.Context, broadcastID string) error
	// ChannelTitle names the authenticated channel
	ChannelTitle(ctx context.Context) (string, error)
}

type service struct {
	api    *yt.Service
	logger logger.Logger
}

// New builds a BroadcastService from the OAuth client secrets and a
// previously stored token. Returns ErrUnauthenticated when either file
// is missing so callers can degrade to manual ingest URLs.
func New(ctx context.Context, secretsFile, tokenFile string, log logger.Logger) (BroadcastService, error) {
	secrets, err := os.ReadFile(secretsFile)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	oauthCfg, err := google.ConfigFromJSON(secrets, yt.YoutubeScope)
	if err != nil {
		return nil, fmt.Errorf("youtube: parse client secrets: %w", err)
	}

	tokenData, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	token := &oauth2.Token{}
	if err := json.Unmarshal(tokenData, token); err != nil {
		return nil, fmt.Errorf("youtube: parse token: %w", err)
	}

	api, err := yt.NewService(ctx, option.WithTokenSource(oauthCfg.TokenSource(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("youtube: build client: %w", err)
	}
	return &service{api: api, logger: log}, nil
}

func (s *service) CreateBroadcastAndStream(ctx context.Context, title, description, privacy string) (*BroadcastInfo, error) {
	if privacy == "" {
		privacy = "unlisted"
	}

	broadcast, err := s.api.LiveBroadcasts.Insert(
		[]string{"snippet", "contentDetails", "status"},
		&yt.LiveBroadcast{
			Snippet: &yt.LiveBroadcastSnippet{
				Title:              title,
				Description:        description,
				ScheduledStartTime: time.Now().UTC().Format(time.RFC3339),
			},
			ContentDetails: &yt.LiveBroadcastContentDetails{
				EnableAutoStart: true,
				EnableAutoStop:  true,
				EnableDvr:       true,
			},
			Status: &yt.LiveBroadcastStatus{PrivacyStatus: privacy},
		}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("youtube: create broadcast: %w", err)
	}

	stream, err := s.api.LiveStreams.Insert(
		[]string{"snippet", "cdn"},
		&yt.LiveStream{
			Snippet: &yt.LiveStreamSnippet{Title: title + " stream"},
			Cdn: &yt.CdnSettings{
				FrameRate:     "variable",
				IngestionType: "rtmp",
				Resolution:    "variable",
			},
		}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("youtube: create stream: %w", err)
	}

	if _, err := s.api.LiveBroadcasts.Bind(broadcast.Id, []string{"id", "contentDetails"}).
		StreamId(stream.Id).Context(ctx).Do(); err != nil {
		return nil, fmt.Errorf("youtube: bind stream: %w", err)
	}

	ingestion := stream.Cdn.IngestionInfo
	info := &BroadcastInfo{
		BroadcastID: broadcast.Id,
		StreamID:    stream.Id,
		IngestURL:   ingestion.IngestionAddress + "/" + ingestion.StreamName,
		StreamKey:   ingestion.StreamName,
		WatchURL:    "https://www.youtube.com/watch?v=" + broadcast.Id,
	}
	s.logger.Info("youtube: broadcast %s ready, watch at %s", info.BroadcastID, info.WatchURL)
	return info, nil
}

func (s *service) Transition(ctx context.Context, broadcastID, phase string) error {
	_, err := s.api.LiveBroadcasts.Transition(phase, broadcastID, []string{"status"}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("youtube: transition %s -> %s: %w", broadcastID, phase, err)
	}
	return nil
}

func (s *service) End(ctx context.Context, broadcastID string) error {
	err := s.Transition(ctx, broadcastID, "complete")
	if err != nil {
		// auto-stop may have completed it first
		s.logger.Debug("youtube: end %s: %v", broadcastID, err)
	}
	return nil
}

func (s *service) ChannelTitle(ctx context.Context) (string, error) {
	resp, err := s.api.Channels.List([]string{"snippet"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("youtube: query channel: %w", err)
	}
	if len(resp.Items) == 0 {
		return "", errors.New("youtube: no channel on this account")
	}
	return resp.Items[0].Snippet.Title, nil
}
