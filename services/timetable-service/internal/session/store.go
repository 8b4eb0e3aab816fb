package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/medportal/timetable/services/timetable-service/internal/booking"
)

// Store owns the live sessions of this instance.
type Store struct {
	weeks   Weeks
	creator booking.Creator
	logger  *slog.Logger
	idle    time.Duration
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore(weeks Weeks, creator booking.Creator, logger *slog.Logger, idle time.Duration) *Store {
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	return &Store{
		weeks:    weeks,
		creator:  creator,
		logger:   logger,
		idle:     idle,
		now:      time.Now,
		sessions: map[string]*Session{},
	}
}

// Create opens a session on the week containing reference and starts its
// first load. Values of ctx are kept for the session's background fetches.
func (st *Store) Create(ctx context.Context, patientID, doctorID string, reference time.Time) *Session {
	s := newSession(ctx, uuid.NewString(), patientID, doctorID, reference, st.weeks, st.creator, st.logger)
	s.touch(st.now())

	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()

	s.Refresh()
	st.logger.Info("session opened", "session_id", s.ID, "doctor_id", doctorID)
	return s
}

func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownSession
	}
	s.touch(st.now())
	return s, nil
}

func (st *Store) Delete(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return false
	}
	delete(st.sessions, id)
	return true
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// RefreshDoctor refetches every session showing the week of date for doctorID.
func (st *Store) RefreshDoctor(doctorID string, date time.Time) int {
	st.mu.RLock()
	var hit []*Session
	for _, s := range st.sessions {
		if s.DoctorID == doctorID && s.shows(date) {
			hit = append(hit, s)
		}
	}
	st.mu.RUnlock()

	for _, s := range hit {
		s.Refresh()
	}
	return len(hit)
}

// Sweep closes sessions idle for longer than the configured limit.
func (st *Store) Sweep() int {
	now := st.now()
	st.mu.Lock()
	defer st.mu.Unlock()
	n := 0
	for id, s := range st.sessions {
		if s.idleSince(now) > st.idle {
			delete(st.sessions, id)
			n++
		}
	}
	return n
}

func (st *Store) RunJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := st.Sweep(); n > 0 {
				st.logger.Info("idle sessions closed", "count", n, "open", st.Len())
			}
		}
	}
}
