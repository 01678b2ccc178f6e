package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrameRate(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"30000/1001", 29.97},
		{"30/1", 30},
		{"0/1", 0},
		{"", 0},
		{"abc", 0},
		{"30", 0},
		{"1/0", 0},
		{"-30/1", 0},
		{"30/-1", 0},
		{"__import__('os')/1", 0},
		{" 25/1 ", 25},
	}
	for _, c := range cases {
		assert.InDelta(t, c.want, ParseFrameRate(c.in), 0.01, "input %q", c.in)
	}
}

const fullProbeJSON = `{
  "format": {"duration": "10.052", "bit_rate": "1500000"},
  "streams": [
    {"codec_type": "video", "codec_name": "h264", "width": 1280, "height": 720, "r_frame_rate": "30000/1001"},
    {"codec_type": "audio", "codec_name": "aac", "bit_rate": "128000"}
  ]
}`

func TestParseFullOutput(t *testing.T) {
	d, err := Parse([]byte(fullProbeJSON))
	require.NoError(t, err)

	assert.InDelta(t, 10.052, d.DurationSec, 0.001)
	assert.Equal(t, 1280, d.Width)
	assert.Equal(t, 720, d.Height)
	assert.Equal(t, "h264", d.VideoCodec)
	assert.Equal(t, int64(1500000), d.Bitrate)
	assert.InDelta(t, 29.97, d.FPS, 0.01)
	assert.True(t, d.HasAudio)
	assert.Equal(t, "aac", d.AudioCodec)
	assert.Equal(t, int64(128000), d.AudioBitrate)
}

func TestParseVideoOnly(t *testing.T) {
	raw := `{
	  "format": {"duration": "4.0"},
	  "streams": [{"codec_type": "video", "codec_name": "vp9", "width": 640, "height": 360, "r_frame_rate": "24/1"}]
	}`
	d, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.False(t, d.HasAudio)
	assert.Empty(t, d.AudioCodec)
}

func TestParseRejectsNonVideo(t *testing.T) {
	cases := map[string]string{
		"no video stream": `{"format": {"duration": "5"}, "streams": [{"codec_type": "audio", "codec_name": "mp3"}]}`,
		"zero duration":   `{"format": {"duration": "0"}, "streams": [{"codec_type": "video", "codec_name": "h264"}]}`,
		"no duration":     `{"format": {}, "streams": [{"codec_type": "video", "codec_name": "h264"}]}`,
		"malformed json":  `{"format": `,
		"empty":           ``,
	}
	for name, raw := range cases {
		_, err := Parse([]byte(raw))
		assert.ErrorIs(t, err, ErrNotAVideo, name)
	}
}

func TestParsePicksFirstStreams(t *testing.T) {
	raw := `{
	  "format": {"duration": "5"},
	  "streams": [
	    {"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "r_frame_rate": "25/1"},
	    {"codec_type": "video", "codec_name": "mjpeg", "width": 320, "height": 180},
	    {"codec_type": "audio", "codec_name": "aac", "bit_rate": "96000"},
	    {"codec_type": "audio", "codec_name": "mp3", "bit_rate": "320000"}
	  ]
	}`
	d, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "h264", d.VideoCodec)
	assert.Equal(t, 1920, d.Width)
	assert.Equal(t, "aac", d.AudioCodec)
}
