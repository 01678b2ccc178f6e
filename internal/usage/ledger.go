package usage

import (
	"sync"
	"time"
)

// Record holds per-submitter counters. Counts only increase, timestamps only
// advance.
type Record struct {
	Videos    int
	Bytes     int64
	FirstSeen time.Time
	LastSeen  time.Time
}

// Ledger tracks per-submitter usage in memory. Independent of job correctness;
// it has no failure modes.
type Ledger struct {
	mu      sync.Mutex
	records map[int64]*Record
	now     func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{
		records: make(map[int64]*Record),
		now:     time.Now,
	}
}

func (l *Ledger) touch(userID int64) *Record {
	r, ok := l.records[userID]
	if !ok {
		now := l.now()
		r = &Record{FirstSeen: now, LastSeen: now}
		l.records[userID] = r
	}
	return r
}

// RecordInteraction creates the record lazily and advances last-seen.
func (l *Ledger) RecordInteraction(userID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := l.touch(userID)
	if now := l.now(); now.After(r.LastSeen) {
		r.LastSeen = now
	}
}

// RecordVideoProcessed bumps the counters once per completed job.
func (l *Ledger) RecordVideoProcessed(userID int64, bytes int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := l.touch(userID)
	r.Videos++
	r.Bytes += bytes
	if now := l.now(); now.After(r.LastSeen) {
		r.LastSeen = now
	}
}

// Snapshot returns a copy of the submitter's record, reporting ok=false when the
// submitter has never interacted.
func (l *Ledger) Snapshot(userID int64) (Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.records[userID]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// Users reports how many submitters have a record.
func (l *Ledger) Users() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
