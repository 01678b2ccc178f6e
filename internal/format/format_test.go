package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileSize(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0B"},
		{512, "512.0B"},
		{1024, "1.0KB"},
		{1536, "1.5KB"},
		{5 * 1024 * 1024, "5.0MB"},
		{2 << 30, "2.0GB"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FileSize(c.in), "input %d", c.in)
	}
}

func TestDuration(t *testing.T) {
	assert.Equal(t, "00:00", Duration(0))
	assert.Equal(t, "01:05", Duration(65))
	assert.Equal(t, "59:59", Duration(3599))
	assert.Equal(t, "01:00:00", Duration(3600))
	assert.Equal(t, "01:01:01", Duration(3661.9))
}

func TestCleanFilename(t *testing.T) {
	assert.Equal(t, "my_video.mp4", CleanFilename(`my/video.mp4`))
	assert.Equal(t, "a_b", CleanFilename(`a<>:"|?*b`))
	assert.Equal(t, "video", CleanFilename(`___`))
	assert.Equal(t, "video", CleanFilename(""))
	assert.Equal(t, "clip", CleanFilename("_clip_."))
}
