package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/punchcard/pkg/domain/interfaces"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
)

type sessionStore struct {
	mu       sync.Mutex
	sessions map[model.SessionKey]*model.ClockSession
	now      func() time.Time
}

var (
	_ interfaces.SessionStore  = &sessionStore{}
	_ interfaces.SessionPurger = &sessionStore{}
	_ interfaces.SessionLister = &sessionStore{}
)

func newSessionStore() *sessionStore {
	return &sessionStore{
		sessions: make(map[model.SessionKey]*model.ClockSession),
		now:      time.Now,
	}
}

func copySession(s *model.ClockSession) *model.ClockSession {
	copied := *s
	if s.EndAt != nil {
		end := *s.EndAt
		copied.EndAt = &end
	}
	return &copied
}

// lookup returns the live session for key and drops an expired one
func (r *sessionStore) lookup(key model.SessionKey) *model.ClockSession {
	s, ok := r.sessions[key]
	if !ok {
		return nil
	}
	if s.IsExpired(r.now()) {
		delete(r.sessions, key)
		return nil
	}
	return s
}

func (r *sessionStore) TryAcquireOpen(ctx context.Context, key model.SessionKey, session *model.ClockSession) (*model.ClockSession, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing := r.lookup(key); existing != nil {
		return copySession(existing), goerr.Wrap(model.ErrAlreadyOpen, "session already open",
			goerr.V(model.RecordIDKey, existing.RecordID),
			goerr.V(model.StartAtKey, existing.StartAt))
	}

	stored := copySession(session)
	if stored.ExpiresAt.IsZero() {
		stored.ExpiresAt = r.now().Add(model.SessionTTL)
	}
	r.sessions[key] = stored
	return nil, nil
}

func (r *sessionStore) PeekOpen(ctx context.Context, key model.SessionKey) (*model.ClockSession, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s := r.lookup(key); s != nil {
		return copySession(s), nil
	}
	return nil, nil
}

func (r *sessionStore) Release(ctx context.Context, key model.SessionKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, key)
	return nil
}

func (r *sessionStore) ReleaseIfMatch(ctx context.Context, key model.SessionKey, recordID model.RecordID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[key]
	if !ok || s.RecordID != recordID {
		return false, nil
	}
	delete(r.sessions, key)
	return true, nil
}

func (r *sessionStore) PurgeExpired(ctx context.Context, before time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for key, s := range r.sessions {
		if s.IsExpired(before) {
			delete(r.sessions, key)
			count++
		}
	}
	return count, nil
}

func (r *sessionStore) ListOpen(ctx context.Context, teamID string) ([]*model.ClockSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sessions []*model.ClockSession
	for key := range r.sessions {
		if key.TeamID != teamID {
			continue
		}
		if s := r.lookup(key); s != nil {
			sessions = append(sessions, copySession(s))
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartAt.Before(sessions[j].StartAt)
	})
	return sessions, nil
}
