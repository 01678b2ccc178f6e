package session

import (
	"errors"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/you/tg-transcoder/internal/probe"
)

// ErrNotFound covers expired, destroyed and never-existing ids alike; callers
// surface it as "selection expired", never as an internal error.
var ErrNotFound = errors.New("session not found")

// Session binds one downloaded source file to its owner for the duration of a
// conversion workflow. Immutable after Create.
type Session struct {
	ID        string
	OwnerID   int64
	Path      string // downloaded source file
	Size      int64  // original size, bytes
	Desc      *probe.VideoDescriptor
	CreatedAt time.Time
}

// Store holds live sessions. Every exported method is one critical section, so a
// sweep and a job claim cannot interleave on the same id.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
	entropy  *ulid.MonotonicEntropy
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		now:      time.Now,
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Create registers a fresh session and returns it. Ids are ULIDs, so a destroyed
// id can never resolve to a later session.
func (s *Store) Create(ownerID int64, path string, size int64, desc *probe.VideoDescriptor) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess := &Session{
		ID:        ulid.MustNew(ulid.Timestamp(now), s.entropy).String(),
		OwnerID:   ownerID,
		Path:      path,
		Size:      size,
		Desc:      desc,
		CreatedAt: now,
	}
	s.sessions[sess.ID] = sess
	return sess
}

func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Destroy strikes the session and unlinks its backing file. Idempotent: a missing
// id or an already-deleted file is a no-op.
func (s *Store) Destroy(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if ok && sess.Path != "" {
		if err := os.Remove(sess.Path); err != nil && !os.IsNotExist(err) {
			// Log-only: the entry is already gone and a stale file is the
			// sweeper's problem, not the caller's.
			logRemoveFailure(sess.Path, err)
		}
	}
}

// SweepExpired destroys sessions older than maxAge, skipping any for which inUse
// reports an active job claim. Returns the number removed.
func (s *Store) SweepExpired(maxAge time.Duration, inUse func(id string) bool) int {
	s.mu.Lock()
	cutoff := s.now().Add(-maxAge)
	var expired []*Session
	for id, sess := range s.sessions {
		if sess.CreatedAt.Before(cutoff) && (inUse == nil || !inUse(id)) {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		if sess.Path != "" {
			if err := os.Remove(sess.Path); err != nil && !os.IsNotExist(err) {
				logRemoveFailure(sess.Path, err)
			}
		}
	}
	return len(expired)
}

// DestroyOwned drops every session belonging to ownerID except those listed in
// keep. Used by explicit cancel, where the bot does not know the session id.
func (s *Store) DestroyOwned(ownerID int64, keep func(id string) bool) int {
	s.mu.Lock()
	var victims []*Session
	for id, sess := range s.sessions {
		if sess.OwnerID == ownerID && (keep == nil || !keep(id)) {
			victims = append(victims, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range victims {
		if sess.Path != "" {
			if err := os.Remove(sess.Path); err != nil && !os.IsNotExist(err) {
				logRemoveFailure(sess.Path, err)
			}
		}
	}
	return len(victims)
}

// Len reports live session count, for the admin stats card.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func logRemoveFailure(path string, err error) {
	log.Warn().Err(err).Str("path", path).Msg("failed to remove session file")
}
