package logx

import (
	"bufio"
	"io"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LineWriter turns stream output into per-line zerolog events at a given level.
// Used to surface ffmpeg/ffprobe stderr in the structured log.
type LineWriter struct {
	logger zerolog.Logger
	level  zerolog.Level
}

func NewLineWriter(fields map[string]string, level zerolog.Level) *LineWriter {
	l := log.Logger
	w := l.With()
	for k, v := range fields {
		w = w.Str(k, v)
	}
	return &LineWriter{logger: w.Logger(), level: level}
}

// ForCommand builds a LineWriter tagged with the subprocess name and session id.
func ForCommand(cmd, sid string, level zerolog.Level) *LineWriter {
	return NewLineWriter(map[string]string{"cmd": cmd, "sid": sid}, level)
}

// Pipe consumes r to EOF, emitting one event per line. Blocks; run in a goroutine
// when r is a live pipe.
func (lw *LineWriter) Pipe(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		switch lw.level {
		case zerolog.DebugLevel:
			lw.logger.Debug().Msg(sc.Text())
		case zerolog.ErrorLevel:
			lw.logger.Error().Msg(sc.Text())
		default:
			lw.logger.Info().Msg(sc.Text())
		}
	}
}
