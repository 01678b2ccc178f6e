package probe

import (
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrNotAVideo means the probe could not produce a usable descriptor. Callers
// degrade (skip the info card) rather than abort the flow.
var ErrNotAVideo = errors.New("not a valid video")

// VideoDescriptor is the typed result of one ffprobe run. Immutable once created.
type VideoDescriptor struct {
	DurationSec  float64
	Width        int
	Height       int
	VideoCodec   string
	Bitrate      int64 // container bitrate, bits/sec
	FPS          float64
	HasAudio     bool
	AudioCodec   string
	AudioBitrate int64
}

// ffprobe -print_format json shape, trimmed to the fields we read.
type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
		BitRate    string `json:"bit_rate"`
	} `json:"streams"`
}

// Inspector runs ffprobe with a bounded timeout.
type Inspector struct {
	Timeout time.Duration
}

func NewInspector(timeout time.Duration) *Inspector {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Inspector{Timeout: timeout}
}

// Inspect probes path and returns its descriptor, or ErrNotAVideo when the file
// is not something ffprobe recognizes as a video with positive duration.
func (in *Inspector) Inspect(ctx context.Context, path string) (*VideoDescriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, in.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, ErrNotAVideo
	}
	return Parse(out)
}

// Parse decodes raw ffprobe JSON into a descriptor. Exported so tests can feed
// fixtures without spawning the tool.
func Parse(raw []byte) (*VideoDescriptor, error) {
	var po probeOutput
	if err := json.Unmarshal(raw, &po); err != nil {
		return nil, ErrNotAVideo
	}

	d := &VideoDescriptor{}
	for i := range po.Streams {
		s := &po.Streams[i]
		switch s.CodecType {
		case "video":
			if d.VideoCodec != "" {
				continue // first video stream wins
			}
			d.VideoCodec = s.CodecName
			d.Width = s.Width
			d.Height = s.Height
			d.FPS = ParseFrameRate(s.RFrameRate)
		case "audio":
			if d.HasAudio {
				continue
			}
			d.HasAudio = true
			d.AudioCodec = s.CodecName
			d.AudioBitrate, _ = strconv.ParseInt(s.BitRate, 10, 64)
		}
	}
	if d.VideoCodec == "" {
		return nil, ErrNotAVideo
	}

	d.DurationSec, _ = strconv.ParseFloat(po.Format.Duration, 64)
	d.Bitrate, _ = strconv.ParseInt(po.Format.BitRate, 10, 64)
	if d.DurationSec <= 0 {
		return nil, ErrNotAVideo
	}
	return d, nil
}

// ParseFrameRate evaluates ffprobe's rational rate string ("30000/1001") as a
// strict int/int fraction. Anything else, including a zero denominator, yields 0.
// Probe output is untrusted input; this must never grow into an expression
// evaluator.
func ParseFrameRate(s string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 0 {
		return 0
	}
	d, err := strconv.Atoi(den)
	if err != nil || d <= 0 {
		return 0
	}
	return float64(n) / float64(d)
}
