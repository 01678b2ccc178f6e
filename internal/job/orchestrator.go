package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/you/tg-transcoder/internal/logx"
	"github.com/you/tg-transcoder/internal/profile"
	"github.com/you/tg-transcoder/internal/session"
	"github.com/you/tg-transcoder/internal/usage"
)

// ErrAlreadyProcessing rejects a second submission while one is running.
var ErrAlreadyProcessing = errors.New("already processing a video")

// Encoder is the transcode engine boundary; faked in tests.
type Encoder interface {
	Transcode(ctx context.Context, inputPath string, p profile.Profile, watermark, outputPath string) error
}

// Notifier is the chat transport boundary. Fire-and-forget: delivery failures are
// logged, never retried here.
type Notifier interface {
	SendStatus(chatID int64, text string) (msgID int, err error)
	EditStatus(chatID int64, msgID int, text string) error
	SendFile(chatID int64, path, caption string) error
}

// Result summarizes one terminal job.
type Result struct {
	Delivered int
	Failed    int
}

type activeJob struct {
	sessionID string
	cancel    context.CancelFunc
}

// Orchestrator drives a session from selection to terminal state: one active job
// per submitter, sequential batch encodes, unconditional cleanup.
type Orchestrator struct {
	store     *session.Store
	enc       Encoder
	notify    Notifier
	ledger    *usage.Ledger
	watermark string
	outDir    string

	mu     sync.Mutex
	active map[int64]*activeJob
}

func NewOrchestrator(store *session.Store, enc Encoder, notify Notifier, ledger *usage.Ledger, watermark, outDir string) *Orchestrator {
	return &Orchestrator{
		store:     store,
		enc:       enc,
		notify:    notify,
		ledger:    ledger,
		watermark: watermark,
		outDir:    outDir,
		active:    make(map[int64]*activeJob),
	}
}

// claim registers the ActiveJob entry before any encoding begins.
func (o *Orchestrator) claim(userID int64, sessionID string, cancel context.CancelFunc) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.active[userID]; busy {
		return ErrAlreadyProcessing
	}
	o.active[userID] = &activeJob{sessionID: sessionID, cancel: cancel}
	return nil
}

func (o *Orchestrator) release(userID int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, userID)
}

// IsActive reports whether some submitter currently runs a job on this session.
// The retention sweeper uses it to spare in-flight sessions.
func (o *Orchestrator) IsActive(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, a := range o.active {
		if a.sessionID == sessionID {
			return true
		}
	}
	return false
}

// ActiveCount reports running jobs, for the admin stats card.
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

// Cancel kills the submitter's running job, if any. The encode loop observes the
// canceled context, skips remaining steps and falls through to cleanup.
func (o *Orchestrator) Cancel(userID int64) bool {
	o.mu.Lock()
	a, ok := o.active[userID]
	o.mu.Unlock()
	if !ok {
		return false
	}
	a.cancel()
	return true
}

// Run executes one job: resolve the session, claim the submitter slot, encode
// every profile in declared order (best-effort per item), deliver each output as
// it lands, then clean up unconditionally.
//
// Precondition failures (unknown/expired/foreign session, submitter busy) return
// before any state change. Once the claim is taken, Run always reaches terminal
// cleanup and reports the per-item outcome to the submitter itself.
func (o *Orchestrator) Run(ctx context.Context, sessionID string, userID, chatID int64, profiles []profile.Profile) (Result, error) {
	var res Result
	if len(profiles) == 0 {
		return res, fmt.Errorf("no profiles selected")
	}

	sess, err := o.store.Get(sessionID)
	if err != nil || sess.OwnerID != userID {
		// Wrong owner is indistinguishable from expired on purpose.
		return res, session.ErrNotFound
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := o.claim(userID, sessionID, cancel); err != nil {
		return res, err
	}

	ctx = logx.WithSession(logx.WithUser(ctx, userID), sessionID)
	l := logx.FromCtx(ctx)

	pending := make(map[string]struct{})
	defer o.cleanup(userID, sessionID, pending)

	total := len(profiles)
	statusID, _ := o.notify.SendStatus(chatID, fmt.Sprintf("⚙️ Processing 1/%d…", total))

	for i, p := range profiles {
		if ctx.Err() != nil {
			l.Info().Int("step", i+1).Msg("job canceled, skipping remaining steps")
			break
		}
		if i > 0 {
			_ = o.notify.EditStatus(chatID, statusID, fmt.Sprintf("⚙️ Processing %d/%d…", i+1, total))
		}

		format, _ := profile.FormatFor(p.Format)
		outPath := filepath.Join(o.outDir, fmt.Sprintf("%s.%s", uuid.New().String(), format.Extension))
		pending[outPath] = struct{}{}

		if err := o.enc.Transcode(ctx, sess.Path, p, o.watermark, outPath); err != nil {
			// Best-effort batch: report this step, keep going.
			res.Failed++
			delete(pending, outPath)
			l.Error().Err(err).Str("profile", p.String()).Msg("encode step failed")
			_, _ = o.notify.SendStatus(chatID, fmt.Sprintf("❌ %s failed: %s", p.Resolution, shortReason(err)))
			continue
		}

		caption := fmt.Sprintf("🎬 Converted to %s (%s, %s)", p.Resolution, p.Quality, p.Format)
		if err := o.notify.SendFile(chatID, outPath, caption); err != nil {
			res.Failed++
			l.Error().Err(err).Str("out", outPath).Msg("delivery failed")
			_, _ = o.notify.SendStatus(chatID, fmt.Sprintf("❌ %s upload failed", p.Resolution))
		} else {
			res.Delivered++
		}
		// Delivered or not, this output is done with; drop it eagerly rather
		// than letting it age until terminal cleanup.
		_ = os.Remove(outPath)
		delete(pending, outPath)
	}

	if res.Delivered > 0 {
		o.ledger.RecordVideoProcessed(userID, sess.Size)
	}

	summary := fmt.Sprintf("✅ Done: %d/%d delivered.", res.Delivered, total)
	if res.Delivered == 0 {
		summary = "❌ Conversion failed, no outputs produced."
	}
	_ = o.notify.EditStatus(chatID, statusID, summary)

	l.Info().Int("delivered", res.Delivered).Int("failed", res.Failed).Msg("job terminal")
	return res, nil
}

// cleanup is the guaranteed-release scope: drop the ActiveJob entry, destroy the
// session (removes the source file) and sweep any undelivered outputs. Safe to
// run twice; every step tolerates already-absent state.
func (o *Orchestrator) cleanup(userID int64, sessionID string, pending map[string]struct{}) {
	o.release(userID)
	o.store.Destroy(sessionID)
	for p := range pending {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			lg := logx.FromCtx(nil)
			lg.Warn().Err(err).Str("path", p).Msg("failed to remove output")
		}
		delete(pending, p)
	}
}

func shortReason(err error) string {
	s := err.Error()
	if len(s) > 200 {
		s = s[:200] + "…"
	}
	return s
}
