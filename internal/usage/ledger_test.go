package usage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotUnknownUser(t *testing.T) {
	l := NewLedger()
	_, ok := l.Snapshot(1)
	assert.False(t, ok)
}

func TestLazyCreateOnInteraction(t *testing.T) {
	l := NewLedger()
	l.RecordInteraction(1)

	rec, ok := l.Snapshot(1)
	require.True(t, ok)
	assert.Equal(t, 0, rec.Videos)
	assert.Equal(t, rec.FirstSeen, rec.LastSeen)
	assert.Equal(t, 1, l.Users())
}

func TestCountersOnlyIncrease(t *testing.T) {
	l := NewLedger()
	l.RecordVideoProcessed(1, 1000)
	l.RecordVideoProcessed(1, 500)

	rec, ok := l.Snapshot(1)
	require.True(t, ok)
	assert.Equal(t, 2, rec.Videos)
	assert.Equal(t, int64(1500), rec.Bytes)
}

func TestTimestampsAdvanceForward(t *testing.T) {
	l := NewLedger()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	l.now = func() time.Time { return now }

	l.RecordInteraction(1)

	now = base.Add(time.Hour)
	l.RecordInteraction(1)
	rec, _ := l.Snapshot(1)
	assert.Equal(t, base, rec.FirstSeen)
	assert.Equal(t, base.Add(time.Hour), rec.LastSeen)

	// A clock step backwards never rewinds last-seen.
	now = base.Add(30 * time.Minute)
	l.RecordInteraction(1)
	rec, _ = l.Snapshot(1)
	assert.Equal(t, base.Add(time.Hour), rec.LastSeen)
}

func TestSnapshotIsACopy(t *testing.T) {
	l := NewLedger()
	l.RecordVideoProcessed(1, 100)
	rec, _ := l.Snapshot(1)
	rec.Videos = 99

	fresh, _ := l.Snapshot(1)
	assert.Equal(t, 1, fresh.Videos)
}
