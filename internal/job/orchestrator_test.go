package job

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/tg-transcoder/internal/profile"
	"github.com/you/tg-transcoder/internal/session"
	"github.com/you/tg-transcoder/internal/usage"
)

// fakeEncoder writes a tiny output file per call, failing for selected
// resolutions. It records the call order.
type fakeEncoder struct {
	mu      sync.Mutex
	calls   []profile.Resolution
	failFor map[profile.Resolution]bool
	block   chan struct{} // when set, every call waits here (or on ctx)
}

func (f *fakeEncoder) Transcode(ctx context.Context, in string, p profile.Profile, wm, out string) error {
	f.mu.Lock()
	f.calls = append(f.calls, p.Resolution)
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.failFor[p.Resolution] {
		return errors.New("exit status 1")
	}
	return os.WriteFile(out, []byte("encoded"), 0o644)
}

func (f *fakeEncoder) order() []profile.Resolution {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]profile.Resolution(nil), f.calls...)
}

// fakeNotifier records transport calls. SendFile asserts the file exists at
// delivery time, since the orchestrator removes it afterwards.
type fakeNotifier struct {
	mu        sync.Mutex
	statuses  []string
	edits     []string
	delivered []string // captions, in delivery order
	fileErr   error
}

func (f *fakeNotifier) SendStatus(chatID int64, text string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, text)
	return len(f.statuses), nil
}

func (f *fakeNotifier) EditStatus(chatID int64, msgID int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeNotifier) SendFile(chatID int64, path, caption string) error {
	if f.fileErr != nil {
		return f.fileErr
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, caption)
	return nil
}

type fixture struct {
	store  *session.Store
	ledger *usage.Ledger
	enc    *fakeEncoder
	note   *fakeNotifier
	orch   *Orchestrator
	outDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  session.NewStore(),
		ledger: usage.NewLedger(),
		enc:    &fakeEncoder{failFor: make(map[profile.Resolution]bool)},
		note:   &fakeNotifier{},
		outDir: t.TempDir(),
	}
	f.orch = NewOrchestrator(f.store, f.enc, f.note, f.ledger, "@brand", f.outDir)
	return f
}

func (f *fixture) newSession(t *testing.T, owner int64) *session.Session {
	t.Helper()
	src := filepath.Join(t.TempDir(), "source.mp4")
	require.NoError(t, os.WriteFile(src, []byte("source bytes"), 0o644))
	return f.store.Create(owner, src, 12, nil)
}

func profiles(t *testing.T, rs ...profile.Resolution) []profile.Profile {
	t.Helper()
	ps, err := profile.Batch(rs, profile.QualityFast, profile.FormatMP4)
	require.NoError(t, err)
	return ps
}

func TestRunSingleProfileSuccess(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t, 42)

	res, err := f.orch.Run(context.Background(), sess.ID, 42, 100, profiles(t, profile.Res720p))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, 0, res.Failed)

	// Session gone, source gone, outputs gone.
	_, err = f.store.Get(sess.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)
	_, statErr := os.Stat(sess.Path)
	assert.True(t, os.IsNotExist(statErr))
	left, _ := os.ReadDir(f.outDir)
	assert.Empty(t, left)

	// Ledger bumped exactly once.
	rec, ok := f.ledger.Snapshot(42)
	require.True(t, ok)
	assert.Equal(t, 1, rec.Videos)

	// Exactly one final summary edit.
	require.NotEmpty(t, f.note.edits)
	assert.Contains(t, f.note.edits[len(f.note.edits)-1], "1/1")
	assert.Len(t, f.note.delivered, 1)
}

func TestBatchRunsInDeclaredOrder(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t, 1)

	want := []profile.Resolution{profile.Res240p, profile.Res360p, profile.Res480p}
	res, err := f.orch.Run(context.Background(), sess.ID, 1, 100, profiles(t, want...))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Delivered)
	assert.Equal(t, want, f.enc.order())

	require.Len(t, f.note.delivered, 3)
	assert.Contains(t, f.note.delivered[0], "240p")
	assert.Contains(t, f.note.delivered[1], "360p")
	assert.Contains(t, f.note.delivered[2], "480p")
}

func TestBatchPartialFailureContinues(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t, 1)
	f.enc.failFor[profile.Res480p] = true

	res, err := f.orch.Run(context.Background(), sess.ID, 1, 100,
		profiles(t, profile.Res240p, profile.Res480p, profile.Res360p))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Delivered)
	assert.Equal(t, 1, res.Failed)

	// The failed middle step did not abort the third.
	assert.Equal(t, []profile.Resolution{profile.Res240p, profile.Res480p, profile.Res360p}, f.enc.order())

	var failMsg bool
	for _, s := range f.note.statuses {
		if strings.Contains(s, "480p") && strings.Contains(s, "failed") {
			failMsg = true
		}
	}
	assert.True(t, failMsg, "per-item failure must be reported")
	assert.Contains(t, f.note.edits[len(f.note.edits)-1], "2/3")

	rec, _ := f.ledger.Snapshot(1)
	assert.Equal(t, 1, rec.Videos, "ledger counts jobs, not batch items")
}

func TestAllStepsFailed(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t, 1)
	f.enc.failFor[profile.Res240p] = true
	f.enc.failFor[profile.Res360p] = true

	res, err := f.orch.Run(context.Background(), sess.ID, 1, 100,
		profiles(t, profile.Res240p, profile.Res360p))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Delivered)

	// Still terminal: session destroyed, no ledger bump, failure summary sent.
	_, err = f.store.Get(sess.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)
	_, ok := f.ledger.Snapshot(1)
	assert.False(t, ok)
	assert.Contains(t, f.note.edits[len(f.note.edits)-1], "failed")
	left, _ := os.ReadDir(f.outDir)
	assert.Empty(t, left)
}

func TestSecondSubmissionRejected(t *testing.T) {
	f := newFixture(t)
	first := f.newSession(t, 7)
	second := f.newSession(t, 7)
	f.enc.block = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.orch.Run(context.Background(), first.ID, 7, 100, profiles(t, profile.Res720p))
	}()

	// Wait for the first job to take its claim.
	require.Eventually(t, func() bool { return f.orch.IsActive(first.ID) }, time.Second, time.Millisecond)

	_, err := f.orch.Run(context.Background(), second.ID, 7, 100, profiles(t, profile.Res360p))
	assert.ErrorIs(t, err, ErrAlreadyProcessing)

	// Rejection left the second session alone.
	_, err = f.store.Get(second.ID)
	assert.NoError(t, err)

	close(f.enc.block)
	<-done
	assert.False(t, f.orch.IsActive(first.ID), "claim released at terminal state")
}

func TestDifferentSubmittersRunIndependently(t *testing.T) {
	f := newFixture(t)
	a := f.newSession(t, 1)
	b := f.newSession(t, 2)
	f.enc.block = make(chan struct{})

	var wg sync.WaitGroup
	for _, tc := range []struct {
		sid  string
		user int64
	}{{a.ID, 1}, {b.ID, 2}} {
		wg.Add(1)
		go func(sid string, user int64) {
			defer wg.Done()
			_, err := f.orch.Run(context.Background(), sid, user, 100, profiles(t, profile.Res360p))
			assert.NoError(t, err)
		}(tc.sid, tc.user)
	}

	require.Eventually(t, func() bool { return f.orch.ActiveCount() == 2 }, time.Second, time.Millisecond)
	close(f.enc.block)
	wg.Wait()
}

func TestWrongOwnerLooksExpired(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t, 1)

	_, err := f.orch.Run(context.Background(), sess.ID, 2, 100, profiles(t, profile.Res360p))
	assert.ErrorIs(t, err, session.ErrNotFound)

	// Foreign selection must not destroy the owner's session.
	_, err = f.store.Get(sess.ID)
	assert.NoError(t, err)
	assert.Equal(t, 0, f.orch.ActiveCount())
}

func TestUnknownSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Run(context.Background(), "01ARZ3NDEKTSV4RRFFQ69G5FAV", 1, 100, profiles(t, profile.Res360p))
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestCancelRunningJob(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t, 5)
	f.enc.block = make(chan struct{}) // never closed; only ctx can release

	done := make(chan Result)
	go func() {
		res, _ := f.orch.Run(context.Background(), sess.ID, 5, 100,
			profiles(t, profile.Res240p, profile.Res360p))
		done <- res
	}()

	require.Eventually(t, func() bool { return f.orch.IsActive(sess.ID) }, time.Second, time.Millisecond)
	require.True(t, f.orch.Cancel(5))

	res := <-done
	assert.Equal(t, 0, res.Delivered)

	// Canceled jobs still reach full cleanup.
	_, err := f.store.Get(sess.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.False(t, f.orch.IsActive(sess.ID))
	assert.False(t, f.orch.Cancel(5), "nothing left to cancel")
}

func TestDeliveryFailureCounted(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t, 1)
	f.note.fileErr = errors.New("upload refused")

	res, err := f.orch.Run(context.Background(), sess.ID, 1, 100, profiles(t, profile.Res360p))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Delivered)
	assert.Equal(t, 1, res.Failed)

	_, ok := f.ledger.Snapshot(1)
	assert.False(t, ok, "no ledger bump without a delivered output")
	left, _ := os.ReadDir(f.outDir)
	assert.Empty(t, left)
}

func TestCleanupIsIdempotent(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t, 1)

	stray := filepath.Join(f.outDir, "stray.mp4")
	require.NoError(t, os.WriteFile(stray, []byte("x"), 0o644))
	pending := map[string]struct{}{stray: {}}

	f.orch.cleanup(1, sess.ID, pending)
	f.orch.cleanup(1, sess.ID, pending) // second call is a no-op

	_, err := f.store.Get(sess.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)
	_, statErr := os.Stat(stray)
	assert.True(t, os.IsNotExist(statErr))
}

func TestNoProfilesRejected(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t, 1)
	_, err := f.orch.Run(context.Background(), sess.ID, 1, 100, nil)
	assert.Error(t, err)
	_, err = f.store.Get(sess.ID)
	assert.NoError(t, err, "rejection has no side effects")
}
