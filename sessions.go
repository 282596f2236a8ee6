package pdfagent

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// Store is the in-memory session repository. It is shared between the
// request path (uploads, status queries) and every in-flight job, so all
// access goes through the mutex. Sessions are never evicted; they live
// until the process exits.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// GetOrCreate returns a snapshot of the session with the given id,
// creating an empty one on first reference.
func (s *Store) GetOrCreate(sessionID string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.getOrCreateLocked(sessionID))
}

func (s *Store) getOrCreateLocked(sessionID string) *Session {
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &Session{
			ID:               sessionID,
			CreatedAt:        s.now(),
			Files:            []FileRecord{},
			DismissedUpdates: []string{},
		}
		s.sessions[sessionID] = sess
	}
	return sess
}

// AddFile appends a record to the session's file sequence. Duplicate
// filenames are not rejected; lookups resolve to the first match in
// insertion order.
func (s *Store) AddFile(sessionID string, rec FileRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateLocked(sessionID)
	sess.Files = append(sess.Files, rec)
}

// FindFile returns a copy of the first record with the given filename,
// or ErrFileNotFound.
func (s *Store) FindFile(sessionID, filename string) (FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return FileRecord{}, ErrFileNotFound
	}
	for i := range sess.Files {
		if sess.Files[i].Filename == filename {
			return sess.Files[i], nil
		}
	}
	return FileRecord{}, ErrFileNotFound
}

// Transition moves the first record matching filename to the given status
// under the store's lock, applying the extra mutation while still locked.
// Illegal transitions (out of a terminal state, or skipping "processing")
// are rejected with ErrInvalidTransition.
func (s *Store) Transition(sessionID, filename string, to FileStatus, mutate func(*FileRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrFileNotFound
	}
	for i := range sess.Files {
		rec := &sess.Files[i]
		if rec.Filename != filename {
			continue
		}
		if !rec.Status.canTransitionTo(to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, to)
		}
		rec.Status = to
		if mutate != nil {
			mutate(rec)
		}
		return nil
	}
	return ErrFileNotFound
}

// DismissUpdate records a dismissed announcement id, idempotently.
func (s *Store) DismissUpdate(sessionID, updateID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateLocked(sessionID)
	if !slices.Contains(sess.DismissedUpdates, updateID) {
		sess.DismissedUpdates = append(sess.DismissedUpdates, updateID)
	}
}

// snapshot deep-copies a session so callers never hold references into
// the store's mutable state.
func snapshot(sess *Session) Session {
	out := Session{
		ID:               sess.ID,
		CreatedAt:        sess.CreatedAt,
		Files:            make([]FileRecord, len(sess.Files)),
		DismissedUpdates: make([]string, len(sess.DismissedUpdates)),
	}
	copy(out.Files, sess.Files)
	copy(out.DismissedUpdates, sess.DismissedUpdates)
	return out
}
