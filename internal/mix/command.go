// Copyright (c) 2026 Jay (JayyDeveloper). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// LofiMix - Lofi 音乐混流与直播推流工作站

// Package mix renders a mix job: crossfaded playlist, loop to target
// length, then a video render over a still image or looping clip.
package mix

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JayyDeveloper/lofimix/internal/queue"
)

// crossfadeArgs builds the step-1 invocation: normalize every song to
// 44.1kHz stereo float, then chain pairwise acrossfades into one track.
func crossfadeArgs(spec queue.Spec, outPath string) []string {
	args := []string{"-y"}
	for _, p := range spec.Songs {
		args = append(args, "-i", p)
	}

	var fc []string
	labels := make([]string, len(spec.Songs))
	for i := range spec.Songs {
		labels[i] = fmt.Sprintf("s%d", i)
		fc = append(fc, fmt.Sprintf(
			"[%d:a]aformat=sample_fmts=fltp:sample_rates=44100:channel_layouts=stereo[%s]",
			i, labels[i]))
	}

	prev := labels[0]
	for i := 1; i < len(labels); i++ {
		out := fmt.Sprintf("f%d", i)
		fc = append(fc, fmt.Sprintf("[%s][%s]acrossfade=d=%d:c1=tri:c2=tri[%s]",
			prev, labels[i], spec.CrossfadeSeconds, out))
		prev = out
	}
	fc = append(fc, fmt.Sprintf("[%s]anull[aout]", prev))

	return append(args,
		"-filter_complex", strings.Join(fc, "; "),
		"-map", "[aout]",
		"-ar", "44100",
		"-ac", "2",
		"-c:a", "libmp3lame",
		"-b:a", spec.AudioBitrate,
		outPath)
}

// loopArgs repeats the playlist without re-encoding
func loopArgs(loops int, inPath, outPath string) []string {
	return []string{
		"-y",
		"-stream_loop", strconv.Itoa(loops),
		"-i", inPath,
		"-c", "copy",
		outPath,
	}
}

// overlayFilter builds the logo branch of the render graph. The final
// scale lives inside the graph to avoid clashing with -vf.
func overlayFilter(spec queue.Spec) string {
	w, h := "1920", "1080"
	if parts := strings.SplitN(spec.Resolution, "x", 2); len(parts) == 2 && parts[0] != "" && parts[1] != "" {
		w, h = parts[0], parts[1]
	}

	x, y := "10", "10"
	switch spec.LogoPosition {
	case "top-right":
		x, y = "W-w-10", "10"
	case "bottom-left":
		x, y = "10", "H-h-10"
	case "bottom-right":
		x, y = "W-w-10", "H-h-10"
	}

	alpha := float64(spec.LogoOpacityPct) / 100.0
	if alpha < 0.1 {
		alpha = 0.1
	}
	if alpha > 1.0 {
		alpha = 1.0
	}

	return fmt.Sprintf(
		"[1:v]format=rgba,scale=w=iw*%d/100:h=-1,colorchannelmixer=aa=%.2f[l2];"+
			"[0:v][l2]overlay=x=%s:y=%s:format=auto,scale=%s:%s,setsar=1[vout]",
		spec.LogoScalePct, alpha, x, y, w, h)
}

// renderArgs builds the step-3 invocation. Four shapes: video or image
// background, with or without the logo overlay.
func renderArgs(spec queue.Spec, audioPath, outPath string) []string {
	args := []string{"-y"}

	if spec.VideoPath != "" {
		args = append(args, "-stream_loop", "-1", "-i", spec.VideoPath)
	} else {
		args = append(args, "-loop", "1", "-i", spec.ImagePath)
	}

	if spec.LogoPath != "" {
		args = append(args,
			"-i", spec.LogoPath,
			"-i", audioPath,
			"-filter_complex", overlayFilter(spec),
			"-map", "[vout]", "-map", "2:a",
			"-c:v", "libx264", "-preset", spec.Preset)
	} else {
		args = append(args,
			"-i", audioPath,
			"-c:v", "libx264", "-preset", spec.Preset)
	}

	if spec.VideoPath == "" {
		args = append(args, "-tune", "stillimage")
	}

	args = append(args,
		"-c:a", "aac",
		"-b:a", spec.AudioBitrate,
		"-shortest",
		"-pix_fmt", "yuv420p")

	if spec.LogoPath == "" {
		args = append(args, "-vf", fmt.Sprintf("scale=%s", spec.Resolution))
	}

	return append(args, outPath)
}
