// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Params is the fixed low-latency encode profile used for every session.
type Params struct {
	VideoCodec      string // e.g. libx264
	AudioCodec      string // e.g. aac
	VideoBitrateK   int
	AudioBitrateK   int
	FrameRate       int
	KeyframeSeconds int
	Preset          string
	Tune            string

	// InputFormat forces the demuxer for stdin (e.g. "webm"). Empty lets ffmpeg probe.
	InputFormat string
}

// DefaultParams returns the profile used when nothing is configured.
func DefaultParams() Params {
	return Params{
		VideoCodec:      "libx264",
		AudioCodec:      "aac",
		VideoBitrateK:   2500,
		AudioBitrateK:   128,
		FrameRate:       30,
		KeyframeSeconds: 2,
		Preset:          "ultrafast",
		Tune:            "zerolatency",
	}
}

// GOP returns the key-frame interval in frames.
func (p Params) GOP() int {
	return p.FrameRate * p.KeyframeSeconds
}

// Validate rejects profiles ffmpeg would choke on.
func (p Params) Validate() error {
	if p.VideoCodec == "" || p.AudioCodec == "" {
		return fmt.Errorf("video and audio codec are required")
	}
	if p.VideoBitrateK <= 0 || p.AudioBitrateK <= 0 {
		return fmt.Errorf("bitrates must be positive (video=%d audio=%d)", p.VideoBitrateK, p.AudioBitrateK)
	}
	if p.FrameRate <= 0 || p.KeyframeSeconds <= 0 {
		return fmt.Errorf("frame rate and keyframe interval must be positive (fps=%d keyframe=%ds)", p.FrameRate, p.KeyframeSeconds)
	}
	return nil
}

// BuildRTMPArgs constructs the ffmpeg arguments that read media from stdin and
// push FLV to sinkURL. No shell is involved, so sinkURL is passed verbatim.
func BuildRTMPArgs(sinkURL string, p Params) ([]string, error) {
	if sinkURL == "" {
		return nil, fmt.Errorf("missing sink URL")
	}
	if !strings.HasPrefix(sinkURL, "rtmp://") && !strings.HasPrefix(sinkURL, "rtmps://") {
		return nil, fmt.Errorf("unsupported sink scheme: %s", redactSink(sinkURL))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	vb := strconv.Itoa(p.VideoBitrateK) + "k"
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-stats",
		// Browser recorders produce timestamps that start late and jitter.
		"-fflags", "+genpts",
	}
	if p.InputFormat != "" {
		args = append(args, "-f", p.InputFormat)
	}
	args = append(args,
		"-i", "pipe:0",

		"-c:v", p.VideoCodec,
		"-preset", p.Preset,
	)
	if p.Tune != "" {
		args = append(args, "-tune", p.Tune)
	}
	args = append(args,
		"-b:v", vb,
		"-maxrate", vb,
		"-bufsize", strconv.Itoa(p.VideoBitrateK*2)+"k",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(p.FrameRate),
		"-g", strconv.Itoa(p.GOP()),
		"-keyint_min", strconv.Itoa(p.GOP()),
		"-sc_threshold", "0",

		"-c:a", p.AudioCodec,
		"-b:a", strconv.Itoa(p.AudioBitrateK)+"k",
		"-ar", "44100",
		"-ac", "2",

		"-f", "flv",
		sinkURL,
	)
	return args, nil
}

// redactSink strips the stream key (last path element) so it never reaches logs.
func redactSink(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid>"
	}
	u.User = nil
	if i := strings.LastIndex(u.Path, "/"); i >= 0 && i < len(u.Path)-1 {
		u.Path = u.Path[:i+1] + "***"
	}
	u.RawQuery = ""
	return u.String()
}
