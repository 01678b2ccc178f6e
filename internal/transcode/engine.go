package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/you/tg-transcoder/internal/logx"
	"github.com/you/tg-transcoder/internal/profile"
)

// ErrEncodeTimeout means the encoder ran past the configured deadline and was killed.
var ErrEncodeTimeout = errors.New("encode timed out")

// EncodeError carries the tail of ffmpeg's stderr for diagnostics.
type EncodeError struct {
	Stderr string
}

func (e *EncodeError) Error() string {
	if e.Stderr == "" {
		return "ffmpeg failed"
	}
	return "ffmpeg failed: " + e.Stderr
}

const stderrTailBytes = 4 * 1024

// runFunc spawns the encoder; swapped out in tests.
type runFunc func(ctx context.Context, args []string, stderr io.Writer) error

// Engine runs ffmpeg invocations, capped system-wide by a semaphore. One encode
// attempt per call; retry policy belongs to the caller.
type Engine struct {
	sem     chan struct{}
	timeout time.Duration
	run     runFunc
}

func NewEngine(maxConcurrent int, timeout time.Duration) *Engine {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Engine{
		sem:     make(chan struct{}, maxConcurrent),
		timeout: timeout,
		run:     runFFmpeg,
	}
}

func runFFmpeg(ctx context.Context, args []string, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = stderr
	return cmd.Run()
}

// Transcode encodes inputPath into outputPath per the profile, blocking until the
// encoder exits. watermark, when non-empty, is drawn after scaling. On any failure
// the partial output is removed before returning.
func (e *Engine) Transcode(ctx context.Context, inputPath string, p profile.Profile, watermark, outputPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.sem }()

	args, err := BuildArgs(inputPath, p, watermark, outputPath)
	if err != nil {
		return err
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if e.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	var buf bytes.Buffer
	start := time.Now()
	runErr := e.run(runCtx, args, &buf)

	if runErr != nil {
		_ = os.Remove(outputPath)
		if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return fmt.Errorf("%w after %s", ErrEncodeTimeout, e.timeout)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		tail := tailOf(buf.Bytes())
		logx.ForCommand("ffmpeg", "", zerolog.ErrorLevel).Pipe(bytes.NewReader(tail))
		return &EncodeError{Stderr: string(tail)}
	}

	// Exit 0 alone is not success: the output must exist and be non-empty.
	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(outputPath)
		return &EncodeError{Stderr: "encoder produced no output"}
	}

	lg := logx.FromCtx(ctx)
	lg.Debug().
		Str("profile", p.String()).
		Str("out", outputPath).
		Dur("took", time.Since(start)).
		Int64("bytes", info.Size()).
		Msg("encode finished")
	return nil
}

func tailOf(b []byte) []byte {
	if len(b) > stderrTailBytes {
		return b[len(b)-stderrTailBytes:]
	}
	return b
}

// BuildArgs assembles the single ffmpeg invocation for one (input, profile) pair.
// Filter order is scale first, watermark second, so the overlay lands on the
// scaled frame. The overlay uses fixed pixel offsets from the top-left; on small
// outputs it covers proportionally more of the frame.
func BuildArgs(inputPath string, p profile.Profile, watermark, outputPath string) ([]string, error) {
	res, err := profile.ResolutionFor(p.Resolution)
	if err != nil {
		return nil, err
	}
	qual, err := profile.QualityFor(p.Quality)
	if err != nil {
		return nil, err
	}
	format, err := profile.FormatFor(p.Format)
	if err != nil {
		return nil, err
	}

	filters := []string{res.ScaleFilter}
	if watermark != "" {
		filters = append(filters, fmt.Sprintf(
			"drawtext=text='%s':fontcolor=white:fontsize=24:x=10:y=10",
			escapeDrawtext(watermark)))
	}

	args := []string{
		"-i", inputPath,
		"-vf", strings.Join(filters, ","),
		"-c:v", format.VideoCodec,
		"-preset", qual.Preset,
		"-crf", strconv.Itoa(qual.CRF),
		"-b:v", res.VideoBitrate,
		"-c:a", format.AudioCodec,
		"-b:a", "128k",
		"-y", outputPath,
	}
	return args, nil
}

// escapeDrawtext neutralizes drawtext metacharacters in user-configured text.
func escapeDrawtext(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`%`, `\%`,
	)
	return r.Replace(s)
}
