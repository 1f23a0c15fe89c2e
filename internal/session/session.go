// Package session keeps per-user state between requests: the index a user
// has built, their conversation history and their last process run.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgallion1/docqa/internal/answer"
	"github.com/dgallion1/docqa/internal/index"
	"github.com/dgallion1/docqa/internal/pipeline"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session not found")

// Session is one user's workspace. Process and Query on the same session
// are serialized through Lock so a query never sees a half-published index.
type Session struct {
	ID      string
	Store   index.Store
	History *answer.History

	mu        sync.Mutex
	lastRun   *pipeline.Run
	createdAt time.Time
	active    atomic.Int64 // unix nanos of last use
}

func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// SetLastRun records run and bumps the activity time. Callers hold Lock.
func (s *Session) SetLastRun(run *pipeline.Run) {
	s.lastRun = run
	s.Touch()
}

// LastRun returns the most recent process run or nil. Callers hold Lock.
func (s *Session) LastRun() *pipeline.Run { return s.lastRun }

// Touch marks the session active.
func (s *Session) Touch() { s.active.Store(time.Now().UnixNano()) }

// Info is a JSON-safe summary of a session.
type Info struct {
	ID        string                `json:"session_id"`
	Turns     int                   `json:"history_turns"`
	LastRun   *pipeline.RunSnapshot `json:"last_run,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		ID:        s.ID,
		Turns:     len(s.History.Turns()),
		CreatedAt: s.createdAt,
		UpdatedAt: s.idleSince(),
	}
	if s.lastRun != nil {
		snap := s.lastRun.Snapshot()
		info.LastRun = &snap
	}
	return info
}

func (s *Session) idleSince() time.Time {
	return time.Unix(0, s.active.Load())
}

// StoreFactory returns the index store for a new session.
type StoreFactory func(sessionID string) (index.Store, error)

// MemoryStores gives every session its own in-process index.
func MemoryStores() StoreFactory {
	return func(string) (index.Store, error) { return index.NewMemoryStore(), nil }
}

// SharedStore hands the same store to every session. Disk mode uses it so
// the server and the CLI see one index directory.
func SharedStore(store index.Store) StoreFactory {
	return func(string) (index.Store, error) { return store, nil }
}

// Store holds live sessions and expires the idle ones.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	newStore     StoreFactory
	historyTurns int
	ttl          time.Duration
	log          *slog.Logger
}

func NewStore(newStore StoreFactory, historyTurns int, ttl time.Duration, log *slog.Logger) *Store {
	return &Store{
		sessions:     make(map[string]*Session),
		newStore:     newStore,
		historyTurns: historyTurns,
		ttl:          ttl,
		log:          log,
	}
}

func (st *Store) Create() (*Session, error) {
	id := uuid.NewString()
	store, err := st.newStore(id)
	if err != nil {
		return nil, fmt.Errorf("create index store: %w", err)
	}
	now := time.Now()
	s := &Session{
		ID:        id,
		Store:     store,
		History:   answer.NewHistory(st.historyTurns),
		createdAt: now,
	}
	s.active.Store(now.UnixNano())

	st.mu.Lock()
	st.sessions[id] = s
	st.mu.Unlock()

	st.log.Info("session created", "session_id", id)
	return s, nil
}

func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (st *Store) Delete(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(st.sessions, id)
	st.log.Info("session deleted", "session_id", id)
	return nil
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Cleanup removes sessions idle for longer than the TTL and returns how
// many were dropped.
func (st *Store) Cleanup() int {
	cutoff := time.Now().Add(-st.ttl)

	st.mu.Lock()
	defer st.mu.Unlock()
	removed := 0
	for id, s := range st.sessions {
		if s.idleSince().Before(cutoff) {
			delete(st.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		st.log.Info("expired idle sessions", "removed", removed, "remaining", len(st.sessions))
	}
	return removed
}

// Run calls Cleanup every interval until ctx is done.
func (st *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.Cleanup()
		}
	}
}
