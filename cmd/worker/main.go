package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/you/tg-transcoder/internal/config"
	"github.com/you/tg-transcoder/internal/job"
	"github.com/you/tg-transcoder/internal/jobs"
	"github.com/you/tg-transcoder/internal/logx"
	"github.com/you/tg-transcoder/internal/probe"
	"github.com/you/tg-transcoder/internal/session"
	"github.com/you/tg-transcoder/internal/transcode"
	"github.com/you/tg-transcoder/internal/usage"
)

// worker owns all core state: sessions, active jobs and the usage ledger live in
// this process only and are lost on restart. Run exactly one worker.
type worker struct {
	cfg       config.Config
	bot       *tgbotapi.BotAPI
	rdb       *redis.Client
	inspector *probe.Inspector
	store     *session.Store
	ledger    *usage.Ledger
	orch      *job.Orchestrator

	downloadDir string
	outputDir   string
}

func main() {
	_ = godotenv.Load()
	c := config.Load()

	logx.Setup(logx.FromEnv("worker"))
	log.Info().Msg("worker starting")

	if c.BotToken == "" {
		log.Fatal().Msg("BOT_TOKEN is required")
	}

	downloadDir := filepath.Join(c.DataDir, "downloads")
	outputDir := filepath.Join(c.DataDir, "outputs")
	for _, d := range []string{downloadDir, outputDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			log.Fatal().Err(err).Str("dir", d).Msg("cannot create scratch dir")
		}
	}

	bot, err := tgbotapi.NewBotAPI(c.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram auth failed")
	}
	log.Info().Str("username", bot.Self.UserName).Msg("worker authorized")

	rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
	store := session.NewStore()
	ledger := usage.NewLedger()
	engine := transcode.NewEngine(c.MaxConcurrentEncodes, c.EncodeTimeout)
	notify := &tgNotifier{bot: bot}
	orch := job.NewOrchestrator(store, engine, notify, ledger, c.WatermarkText, outputDir)

	w := &worker{
		cfg:         c,
		bot:         bot,
		rdb:         rdb,
		inspector:   probe.NewInspector(c.ProbeTimeout),
		store:       store,
		ledger:      ledger,
		orch:        orch,
		downloadDir: downloadDir,
		outputDir:   outputDir,
	}

	go w.runSweeper()

	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: c.RedisAddr}, asynq.Config{
		Concurrency: c.Concurrency,
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(jobs.TaskStartSession, func(ctx context.Context, t *asynq.Task) error {
		var p jobs.StartSessionPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return err
		}
		return w.handleStartSession(ctx, p)
	})
	mux.HandleFunc(jobs.TaskConvert, func(ctx context.Context, t *asynq.Task) error {
		var p jobs.ConvertPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return err
		}
		return w.handleConvert(ctx, p)
	})
	mux.HandleFunc(jobs.TaskCancel, func(ctx context.Context, t *asynq.Task) error {
		var p jobs.CancelPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return err
		}
		return w.handleCancel(ctx, p)
	})
	mux.HandleFunc(jobs.TaskUsageReport, func(ctx context.Context, t *asynq.Task) error {
		var p jobs.UsageReportPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return err
		}
		return w.handleUsageReport(ctx, p)
	})

	if err := srv.Run(mux); err != nil {
		log.Fatal().Err(err).Msg("asynq server stopped")
	}
}

// runSweeper expires idle sessions on a fixed cadence. Sessions with a running
// job are excluded via the orchestrator's claim check.
func (w *worker) runSweeper() {
	t := time.NewTicker(w.cfg.SweepInterval)
	defer t.Stop()
	for range t.C {
		n := w.store.SweepExpired(w.cfg.SessionExpiry, w.orch.IsActive)
		if n > 0 {
			log.Info().Int("removed", n).Msg("swept expired sessions")
		}
	}
}
