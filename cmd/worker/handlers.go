package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hibiken/asynq"

	"github.com/you/tg-transcoder/internal/format"
	"github.com/you/tg-transcoder/internal/job"
	"github.com/you/tg-transcoder/internal/jobs"
	"github.com/you/tg-transcoder/internal/logx"
	"github.com/you/tg-transcoder/internal/probe"
	"github.com/you/tg-transcoder/internal/profile"
	"github.com/you/tg-transcoder/internal/session"
)

// tell sends a plain status message, best-effort.
func (w *worker) tell(chatID int64, text string) {
	_, _ = w.bot.Send(tgbotapi.NewMessage(chatID, text))
}

// skipRetry marks a user-facing failure as final so asynq does not replay it.
func skipRetry(msg string, args ...any) error {
	args = append(args, asynq.SkipRetry)
	return fmt.Errorf(msg+": %w", args...)
}

/* ---------------------- session:start ---------------------- */

// handleStartSession downloads the upload, probes it and opens the session, then
// presents the profile keyboard. A failed probe degrades the info card but does
// not block conversion.
func (w *worker) handleStartSession(ctx context.Context, p jobs.StartSessionPayload) error {
	ctx = logx.WithUser(ctx, p.UserID)
	l := logx.FromCtx(ctx)
	w.ledger.RecordInteraction(p.UserID)

	statusID := w.sendStatus(p.ChatID, "⬇️ Downloading video…")

	path, size, err := w.download(ctx, p, statusID)
	if err != nil {
		l.Error().Err(err).Str("file_id", p.FileID).Msg("download failed")
		w.editStatus(p.ChatID, statusID, "❌ Download failed. Send the video again.")
		return skipRetry("download %s", p.FileID)
	}

	desc, err := w.inspector.Inspect(ctx, path)
	if err != nil && !errors.Is(err, probe.ErrNotAVideo) {
		l.Error().Err(err).Msg("probe failed")
	}

	sess := w.store.Create(p.UserID, path, size, desc)
	l.Info().Str("sid", sess.ID).Int64("bytes", size).Bool("probed", desc != nil).Msg("session created")

	w.editStatus(p.ChatID, statusID, w.infoCard(p.FileName, size, desc))
	w.askProfile(p.ChatID, sess.ID)
	return nil
}

func (w *worker) infoCard(name string, size int64, desc *probe.VideoDescriptor) string {
	var b strings.Builder
	b.WriteString("✅ Download complete.\n")
	if name != "" {
		fmt.Fprintf(&b, "📄 %s\n", format.CleanFilename(name))
	}
	fmt.Fprintf(&b, "💾 %s\n", format.FileSize(size))
	if desc != nil {
		fmt.Fprintf(&b, "⏱ %s · %dx%d · %s", format.Duration(desc.DurationSec), desc.Width, desc.Height, desc.VideoCodec)
		if desc.FPS > 0 {
			fmt.Fprintf(&b, " · %.2f fps", desc.FPS)
		}
		b.WriteString("\n")
		est := profile.EstimateProcessingTime(desc.DurationSec,
			profile.Resolution(w.cfg.DefaultResolution), profile.Quality(w.cfg.DefaultQuality))
		fmt.Fprintf(&b, "⏳ ~%s to process at %s/%s\n", format.Duration(est), w.cfg.DefaultResolution, w.cfg.DefaultQuality)
	}
	b.WriteString("🎯 Select output resolution:")
	return b.String()
}

// askProfile sends the selection keyboard. Callback data carries the session id
// so the stateless bot process can relay choices back to us.
func (w *worker) askProfile(chatID int64, sid string) {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, r := range profile.Resolutions {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(string(r), fmt.Sprintf("res:%s:%s", sid, r)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("All (360+480+720)", "all:"+sid),
	))
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Advanced…", "adv:"+sid),
	))

	msg := tgbotapi.NewMessage(chatID, "Choose:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	_, _ = w.bot.Send(msg)
}

/* ---------------------- session:convert ---------------------- */

func (w *worker) handleConvert(ctx context.Context, p jobs.ConvertPayload) error {
	ctx = logx.WithUser(ctx, p.UserID)
	w.ledger.RecordInteraction(p.UserID)

	profiles, err := w.buildProfiles(p)
	if err != nil {
		w.tell(p.ChatID, "❌ Unknown option. Pick one from the keyboard.")
		return skipRetry("profiles for %s", p.SessionID)
	}

	if !w.cfg.IsAdmin(p.UserID) {
		remain := w.remainingToday(ctx, p.UserID)
		if len(profiles) > remain {
			w.tell(p.ChatID, fmt.Sprintf("❌ Daily limit reached (%d outputs/day, %d left). Try again tomorrow.",
				w.cfg.DailyMax, remain))
			return nil
		}
	}

	res, err := w.orch.Run(ctx, p.SessionID, p.UserID, p.ChatID, profiles)
	switch {
	case errors.Is(err, job.ErrAlreadyProcessing):
		w.tell(p.ChatID, "⏳ You already have a conversion running. Wait for it to finish or /cancel it.")
		return nil
	case errors.Is(err, session.ErrNotFound):
		w.tell(p.ChatID, "⌛ Selection expired. Send the video again.")
		return nil
	case err != nil:
		return err
	}

	if res.Delivered > 0 {
		w.chargeDaily(ctx, p.UserID, res.Delivered)
	}
	return nil
}

func (w *worker) buildProfiles(p jobs.ConvertPayload) ([]profile.Profile, error) {
	q := profile.Quality(p.Quality)
	if p.Quality == "" {
		q = profile.Quality(w.cfg.DefaultQuality)
	}
	f := profile.Format(p.Format)
	if p.Format == "" {
		f = profile.Format(w.cfg.DefaultFormat)
	}
	if p.Batch {
		return profile.Batch(profile.BatchResolutions, q, f)
	}
	single, err := profile.New(profile.Resolution(p.Resolution), q, f)
	if err != nil {
		return nil, err
	}
	return []profile.Profile{single}, nil
}

/* ---------------------- session:cancel ---------------------- */

func (w *worker) handleCancel(ctx context.Context, p jobs.CancelPayload) error {
	if w.orch.Cancel(p.UserID) {
		w.tell(p.ChatID, "🛑 Canceling the running conversion…")
		return nil
	}
	if p.SessionID != "" {
		if sess, err := w.store.Get(p.SessionID); err == nil && sess.OwnerID == p.UserID {
			w.store.Destroy(p.SessionID)
			w.tell(p.ChatID, "Session canceled. Send a video to start again.")
			return nil
		}
	}
	// No running job and no explicit id: drop whatever the user has awaiting a
	// choice, sparing anything a job still claims.
	if n := w.store.DestroyOwned(p.UserID, w.orch.IsActive); n > 0 {
		w.tell(p.ChatID, "Session canceled. Send a video to start again.")
		return nil
	}
	w.tell(p.ChatID, "Nothing to cancel.")
	return nil
}

/* ---------------------- usage:report ---------------------- */

func (w *worker) handleUsageReport(ctx context.Context, p jobs.UsageReportPayload) error {
	rec, ok := w.ledger.Snapshot(p.UserID)
	if !ok {
		w.tell(p.ChatID, "No usage recorded yet. Send a video to get started!")
		return nil
	}
	text := fmt.Sprintf("📊 Your usage\nVideos processed: %d\nData processed: %s\nFirst seen: %s\nLast seen: %s",
		rec.Videos, format.FileSize(rec.Bytes),
		rec.FirstSeen.Format("2006-01-02 15:04"),
		rec.LastSeen.Format("2006-01-02 15:04"))
	if p.Admin {
		text += fmt.Sprintf("\n\n🛠 Admin\nLive sessions: %d\nRunning jobs: %d\nKnown users: %d",
			w.store.Len(), w.orch.ActiveCount(), w.ledger.Users())
	}
	w.tell(p.ChatID, text)
	return nil
}

/* ---------------------- status helpers ---------------------- */

func (w *worker) sendStatus(chatID int64, text string) int {
	sent, err := w.bot.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return 0
	}
	return sent.MessageID
}

func (w *worker) editStatus(chatID int64, msgID int, text string) {
	if msgID == 0 {
		w.tell(chatID, text)
		return
	}
	_, _ = w.bot.Send(tgbotapi.NewEditMessageText(chatID, msgID, text))
}

func removeIfExists(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		lg := logx.FromCtx(nil)
		lg.Warn().Err(err).Str("path", path).Msg("remove failed")
	}
}
