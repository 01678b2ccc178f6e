package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/you/tg-transcoder/internal/format"
	"github.com/you/tg-transcoder/internal/jobs"
)

const progressEditInterval = 2 * time.Second

// download fetches the uploaded file from the Telegram file API into the scratch
// download dir and returns its local path and size.
//
// Progress reporting is back-pressured: the copy loop publishes the byte count
// into a capacity-1 channel where the latest value wins, and a single goroutine
// drains it on a fixed cadence to edit the status message. A slow Telegram edit
// can therefore never pile up pending updates behind the download.
func (w *worker) download(ctx context.Context, p jobs.StartSessionPayload, statusID int) (string, int64, error) {
	f, err := w.bot.GetFile(tgbotapi.FileConfig{FileID: p.FileID})
	if err != nil {
		return "", 0, fmt.Errorf("get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.Link(w.cfg.BotToken), nil)
	if err != nil {
		return "", 0, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("fetch: status %s", resp.Status)
	}

	name := format.CleanFilename(p.FileName)
	dest := filepath.Join(w.downloadDir, uuid.New().String()+"_"+name)
	out, err := os.Create(dest)
	if err != nil {
		return "", 0, err
	}

	progress := make(chan int64, 1)
	drained := make(chan struct{})
	go w.drainProgress(p.ChatID, statusID, p.Size, progress, drained)

	n, err := io.Copy(io.MultiWriter(out, &progressWriter{ch: progress}), resp.Body)
	closeErr := out.Close()
	close(progress)
	<-drained

	if err == nil {
		err = closeErr
	}
	if err != nil {
		removeIfExists(dest)
		return "", 0, fmt.Errorf("copy: %w", err)
	}
	return dest, n, nil
}

// progressWriter publishes the running byte count, latest value wins.
type progressWriter struct {
	ch chan int64
	n  int64
}

func (pw *progressWriter) Write(b []byte) (int, error) {
	pw.n += int64(len(b))
	select {
	case pw.ch <- pw.n:
	default:
		select {
		case <-pw.ch:
		default:
		}
		select {
		case pw.ch <- pw.n:
		default:
		}
	}
	return len(b), nil
}

// drainProgress edits the status message at most once per cadence tick with the
// most recent byte count. Exits when the progress channel closes.
func (w *worker) drainProgress(chatID int64, statusID int, total int64, progress <-chan int64, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(progressEditInterval)
	defer t.Stop()

	var last int64
	open := true
	for open {
		select {
		case n, ok := <-progress:
			if !ok {
				open = false
				continue
			}
			last = n
		case <-t.C:
			if last == 0 {
				continue
			}
			text := "⬇️ Downloading… " + format.FileSize(last)
			if total > 0 {
				text = fmt.Sprintf("⬇️ Downloading… %d%%", last*100/total)
			}
			w.editStatus(chatID, statusID, text)
		}
	}
}
