package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/you/tg-transcoder/internal/config"
	"github.com/you/tg-transcoder/internal/format"
	"github.com/you/tg-transcoder/internal/jobs"
	"github.com/you/tg-transcoder/internal/logx"
)

var rctx = context.Background()

// server is the thin chat glue: it validates uploads, renders keyboards and
// relays every substantive event to the worker as an asynq task. It holds no
// job state of its own.
type server struct {
	cfg   config.Config
	bot   *tgbotapi.BotAPI
	rdb   *redis.Client
	asynq *asynq.Client
}

func main() {
	_ = godotenv.Load()
	c := config.Load()

	logx.Setup(logx.FromEnv("bot"))
	log.Info().Msg("bot starting")

	if c.BotToken == "" {
		log.Fatal().Msg("BOT_TOKEN is required")
	}

	go serveHealth(c.HealthAddr)

	bot, err := tgbotapi.NewBotAPI(c.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram auth failed")
	}
	bot.Debug = false
	log.Info().Str("username", bot.Self.UserName).Msg("bot authorized")

	s := &server{
		cfg:   c,
		bot:   bot,
		rdb:   redis.NewClient(&redis.Options{Addr: c.RedisAddr}),
		asynq: asynq.NewClient(asynq.RedisClientOpt{Addr: c.RedisAddr}),
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	for upd := range updates {
		switch {
		case upd.Message != nil:
			s.onMessage(upd.Message)
		case upd.CallbackQuery != nil:
			s.onCallback(upd.CallbackQuery)
		}
	}
}

func serveHealth(addr string) {
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy","service":"video-encoder-bot"}`))
	})
	log.Info().Str("addr", addr).Msg("health endpoint up")
	log.Error().Err(http.ListenAndServe(addr, nil)).Msg("health server stopped")
}

/* ---------------------- handlers ---------------------- */

func (s *server) onMessage(m *tgbotapi.Message) {
	log.Info().
		Int64("chat_id", m.Chat.ID).
		Int64("user_id", m.From.ID).
		Msg("message received")

	if m.IsCommand() {
		s.onCommand(m)
		return
	}

	fileID, name, size, ok := extractVideo(m)
	if !ok {
		return // ignore non-video messages
	}

	if size > s.cfg.MaxFileSize {
		s.tell(m.Chat.ID, fmt.Sprintf("❌ File too large: %s (limit %s).",
			format.FileSize(size), format.FileSize(s.cfg.MaxFileSize)))
		return
	}

	s.enqueue(m.Chat.ID, jobs.TaskStartSession, jobs.StartSessionPayload{
		ChatID:   m.Chat.ID,
		UserID:   m.From.ID,
		FileID:   fileID,
		FileName: name,
		Size:     size,
	})
}

func (s *server) onCommand(m *tgbotapi.Message) {
	switch m.Command() {
	case "start":
		s.tell(m.Chat.ID, fmt.Sprintf(
			"👋 Send me a video file (max %s). I'll transcode it into your chosen resolution, quality and format — with watermark!\n\n"+
				"/formats — supported profiles\n/usage — your stats\n/stats — remaining daily quota\n/cancel — abort current job",
			format.FileSize(s.cfg.MaxFileSize)))
	case "help":
		s.tell(m.Chat.ID, "Send a video, then pick a resolution from the keyboard. "+
			"\"All\" converts to 360p+480p+720p in one go; \"Advanced\" lets you pick quality and container too.")
	case "formats":
		s.tell(m.Chat.ID, formatsText())
	case "usage":
		s.enqueue(m.Chat.ID, jobs.TaskUsageReport, jobs.UsageReportPayload{
			ChatID: m.Chat.ID,
			UserID: m.From.ID,
			Admin:  s.cfg.IsAdmin(m.From.ID),
		})
	case "stats":
		rem := s.remainingToday(m.From.ID)
		s.tell(m.Chat.ID, fmt.Sprintf("📊 Daily quota: %d outputs. Remaining today: %d.", s.cfg.DailyMax, rem))
	case "cancel":
		s.enqueue(m.Chat.ID, jobs.TaskCancel, jobs.CancelPayload{ChatID: m.Chat.ID, UserID: m.From.ID})
	default:
		s.tell(m.Chat.ID, "Unknown command. Send a video to start.")
	}
}

func extractVideo(m *tgbotapi.Message) (fileID, name string, size int64, ok bool) {
	if m.Video != nil {
		return m.Video.FileID, m.Video.FileName, int64(m.Video.FileSize), true
	}
	// Accept video sent as document when the mime type says so
	if m.Document != nil && strings.HasPrefix(strings.ToLower(m.Document.MimeType), "video/") {
		return m.Document.FileID, m.Document.FileName, int64(m.Document.FileSize), true
	}
	return "", "", 0, false
}

/* ---------------------- task hand-off ---------------------- */

func (s *server) enqueue(chatID int64, task string, payload any) {
	b, _ := json.Marshal(payload)
	if _, err := s.asynq.EnqueueContext(rctx, asynq.NewTask(task, b), asynq.MaxRetry(3)); err != nil {
		log.Error().Err(err).Str("task", task).Msg("asynq enqueue failed")
		s.tell(chatID, "Queue error, try again later.")
	}
}

func (s *server) tell(chatID int64, text string) {
	_, _ = s.bot.Send(tgbotapi.NewMessage(chatID, text))
}

func (s *server) answerCB(cq *tgbotapi.CallbackQuery, text string) {
	_, _ = s.bot.Request(tgbotapi.NewCallback(cq.ID, text))
}

func (s *server) remainingToday(user int64) int {
	used, _ := s.rdb.Get(rctx, keyQuota(user, today())).Int()
	if used < 0 {
		used = 0
	}
	rem := s.cfg.DailyMax - used
	if rem < 0 {
		rem = 0
	}
	return rem
}
