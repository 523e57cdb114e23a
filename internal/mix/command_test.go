// Copyright (c) 2026 Jay (JayyDeveloper). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// LofiMix - Lofi 音乐混流与直播推流工作站

package mix

import (
	"strings"
	"testing"

	"github.com/JayyDeveloper/lofimix/internal/queue"
)

func baseSpec() queue.Spec {
	return queue.Spec{
		Songs:            []string{"a.mp3", "b.mp3", "c.mp3"},
		ImagePath:        "bg.png",
		CrossfadeSeconds: 5,
		TargetSeconds:    3600,
		Resolution:       "1280x720",
		AudioBitrate:     "192k",
		Preset:           "veryfast",
		Basename:         "mix",
		WorkDir:          "work",
	}
}

// TestCrossfadeArgs chains n-1 acrossfades over normalized inputs.
func TestCrossfadeArgs(t *testing.T) {
	args := crossfadeArgs(baseSpec(), "playlist.mp3")
	joined := strings.Join(args, " ")

	if got := strings.Count(joined, "-i "); got != 3 {
		t.Fatalf("input count = %d, want 3", got)
	}
	if got := strings.Count(joined, "acrossfade=d=5:c1=tri:c2=tri"); got != 2 {
		t.Fatalf("acrossfade count = %d, want 2", got)
	}
	if !strings.Contains(joined, "aformat=sample_fmts=fltp:sample_rates=44100:channel_layouts=stereo") {
		t.Fatal("missing aformat normalization")
	}
	if !strings.Contains(joined, "-map [aout]") {
		t.Fatal("missing output map")
	}
	if args[len(args)-1] != "playlist.mp3" {
		t.Fatalf("last arg = %q, want output path", args[len(args)-1])
	}
}

// TestLoopArgs copies streams without re-encoding.
func TestLoopArgs(t *testing.T) {
	args := loopArgs(4, "playlist.mp3", "long.mp3")
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-stream_loop 4") {
		t.Fatalf("args = %v", args)
	}
	if !strings.Contains(joined, "-c copy") {
		t.Fatalf("loop step must not re-encode: %v", args)
	}
}

// TestOverlayFilterPositions maps corners to overlay expressions.
func TestOverlayFilterPositions(t *testing.T) {
	cases := map[string]string{
		"top-left":     "overlay=x=10:y=10",
		"top-right":    "overlay=x=W-w-10:y=10",
		"bottom-left":  "overlay=x=10:y=H-h-10",
		"bottom-right": "overlay=x=W-w-10:y=H-h-10",
	}
	for pos, want := range cases {
		spec := baseSpec()
		spec.LogoPath = "logo.png"
		spec.LogoPosition = pos
		spec.LogoScalePct = 18
		spec.LogoOpacityPct = 80

		f := overlayFilter(spec)
		if !strings.Contains(f, want) {
			t.Fatalf("%s: filter %q missing %q", pos, f, want)
		}
		if !strings.Contains(f, "scale=1280:720") {
			t.Fatalf("%s: final scale missing in %q", pos, f)
		}
		if !strings.Contains(f, "colorchannelmixer=aa=0.80") {
			t.Fatalf("%s: opacity missing in %q", pos, f)
		}
	}
}

// TestOverlayFilterClampsOpacity keeps alpha within 0.1..1.0.
func TestOverlayFilterClampsOpacity(t *testing.T) {
	spec := baseSpec()
	spec.LogoPath = "logo.png"
	spec.LogoScalePct = 18
	spec.LogoOpacityPct = 1

	if f := overlayFilter(spec); !strings.Contains(f, "aa=0.10") {
		t.Fatalf("low opacity not clamped: %q", f)
	}
}

// TestRenderArgsStillImage tunes for still image and scales via -vf.
func TestRenderArgsStillImage(t *testing.T) {
	args := renderArgs(baseSpec(), "long.mp3", "out.mp4")
	joined := strings.Join(args, " ")

	for _, want := range []string{"-loop 1", "-tune stillimage", "-vf scale=1280x720", "-shortest", "-pix_fmt yuv420p"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing %q in %v", want, args)
		}
	}
	if strings.Contains(joined, "-stream_loop") {
		t.Fatal("still image render must not loop a video input")
	}
}

// TestRenderArgsVideoBackground loops the clip and skips stillimage tuning.
func TestRenderArgsVideoBackground(t *testing.T) {
	spec := baseSpec()
	spec.ImagePath = ""
	spec.VideoPath = "loop.mp4"

	args := renderArgs(spec, "long.mp3", "out.mp4")
	joined := strings.Join(args, " ")

	if !strings.Contains(joined, "-stream_loop -1") {
		t.Fatalf("missing infinite loop in %v", args)
	}
	if strings.Contains(joined, "stillimage") {
		t.Fatal("video background must not tune for stillimage")
	}
}

// TestRenderArgsWithLogo routes video through the overlay graph.
func TestRenderArgsWithLogo(t *testing.T) {
	spec := baseSpec()
	spec.LogoPath = "logo.png"
	spec.LogoPosition = "bottom-right"
	spec.LogoScalePct = 20
	spec.LogoOpacityPct = 50

	args := renderArgs(spec, "long.mp3", "out.mp4")
	joined := strings.Join(args, " ")

	if !strings.Contains(joined, "-filter_complex") {
		t.Fatalf("missing filter_complex in %v", args)
	}
	if !strings.Contains(joined, "-map [vout] -map 2:a") {
		t.Fatalf("missing stream maps in %v", args)
	}
	if strings.Contains(joined, "-vf ") {
		t.Fatal("-vf conflicts with the overlay graph")
	}
}
