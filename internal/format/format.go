package format

import (
	"fmt"
	"regexp"
	"strings"
)

// FileSize renders bytes as a human-readable size ("1.2MB").
func FileSize(b int64) string {
	if b == 0 {
		return "0B"
	}
	units := []string{"B", "KB", "MB", "GB", "TB"}
	size := float64(b)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	return fmt.Sprintf("%.1f%s", size, units[i])
}

// Duration renders seconds as mm:ss, or hh:mm:ss past the hour.
func Duration(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

var (
	invalidChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	multiUnder   = regexp.MustCompile(`_+`)
)

// CleanFilename strips characters unsafe for file operations. Falls back to
// "video" when nothing survives.
func CleanFilename(name string) string {
	name = invalidChars.ReplaceAllString(name, "_")
	name = multiUnder.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_.")
	if name == "" {
		return "video"
	}
	return name
}
