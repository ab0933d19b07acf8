package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"
	"github.com/secmon-lab/punchcard/pkg/domain/interfaces"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
)

const defaultKeyPrefix = "punchcard:open_session:"

// SessionStore keeps open session marks in Redis with SET NX PX
type SessionStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

var (
	_ interfaces.SessionStore  = &SessionStore{}
	_ interfaces.SessionLister = &SessionStore{}
)

type Option func(*SessionStore)

// WithKeyPrefix overrides the key namespace
func WithKeyPrefix(prefix string) Option {
	return func(s *SessionStore) {
		s.prefix = prefix
	}
}

// WithClock replaces the time source used to compute expiry
func WithClock(now func() time.Time) Option {
	return func(s *SessionStore) {
		s.now = now
	}
}

// New connects with a redis:// or rediss:// URL
func New(ctx context.Context, url string, opts ...Option) (*SessionStore, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse redis URL")
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, goerr.Wrap(err, "failed to connect to redis", goerr.V("addr", redisOpts.Addr))
	}
	return NewWithClient(client, opts...), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client, opts ...Option) *SessionStore {
	s := &SessionStore{
		client: client,
		prefix: defaultKeyPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SessionStore) key(key model.SessionKey) string {
	return s.prefix + key.String()
}

func (s *SessionStore) TryAcquireOpen(ctx context.Context, key model.SessionKey, session *model.ClockSession) (*model.ClockSession, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	stored := *session
	if stored.ExpiresAt.IsZero() {
		stored.ExpiresAt = s.now().Add(model.SessionTTL)
	}
	ttl := stored.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil, goerr.New("session already expired", goerr.V(model.RecordIDKey, session.RecordID))
	}

	data, err := json.Marshal(&stored)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode session")
	}

	// A key may vanish between a failed SETNX and the GET; try once more
	for range 2 {
		ok, err := s.client.SetNX(ctx, s.key(key), data, ttl).Result()
		if err != nil {
			return nil, goerr.Wrap(err, "failed to acquire open session", goerr.V("key", s.key(key)))
		}
		if ok {
			return nil, nil
		}

		existing, err := s.get(ctx, key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, goerr.Wrap(model.ErrAlreadyOpen, "session already open",
				goerr.V(model.RecordIDKey, existing.RecordID),
				goerr.V(model.StartAtKey, existing.StartAt))
		}
	}
	return nil, goerr.Wrap(model.ErrAlreadyOpen, "session already open", goerr.V("key", s.key(key)))
}

func (s *SessionStore) get(ctx context.Context, key model.SessionKey) (*model.ClockSession, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get open session", goerr.V("key", s.key(key)))
	}

	var session model.ClockSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, goerr.Wrap(err, "failed to decode open session", goerr.V("key", s.key(key)))
	}
	return &session, nil
}

func (s *SessionStore) PeekOpen(ctx context.Context, key model.SessionKey) (*model.ClockSession, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return s.get(ctx, key)
}

func (s *SessionStore) Release(ctx context.Context, key model.SessionKey) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return goerr.Wrap(err, "failed to release open session", goerr.V("key", s.key(key)))
	}
	return nil
}

// ReleaseIfMatch deletes the key in a WATCH transaction. A concurrent write
// aborts the transaction and leaves the entry in place.
func (s *SessionStore) ReleaseIfMatch(ctx context.Context, key model.SessionKey, recordID model.RecordID) (bool, error) {
	k := s.key(key)
	released := false

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var session model.ClockSession
		if err := json.Unmarshal(raw, &session); err != nil {
			return err
		}
		if session.RecordID != recordID {
			return nil
		}

		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, k)
			return nil
		}); err != nil {
			return err
		}
		released = true
		return nil
	}, k)

	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, goerr.Wrap(err, "failed to release open session",
			goerr.V("key", k),
			goerr.V(model.RecordIDKey, recordID))
	}
	return released, nil
}

// ListOpen walks the team's keys with SCAN
func (s *SessionStore) ListOpen(ctx context.Context, teamID string) ([]*model.ClockSession, error) {
	var sessions []*model.ClockSession
	iter := s.client.Scan(ctx, 0, s.prefix+teamID+":*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to get open session", goerr.V("key", iter.Val()))
		}
		var session model.ClockSession
		if err := json.Unmarshal(raw, &session); err != nil {
			return nil, goerr.Wrap(err, "failed to decode open session", goerr.V("key", iter.Val()))
		}
		sessions = append(sessions, &session)
	}
	if err := iter.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to scan open sessions", goerr.V(model.TeamIDKey, teamID))
	}
	return sessions, nil
}

// Ping reports whether Redis is reachable
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *SessionStore) Close() error {
	return s.client.Close()
}
