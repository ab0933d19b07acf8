package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/punchcard/pkg/domain/interfaces"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
	"github.com/secmon-lab/punchcard/pkg/repository/firestore"
	"github.com/secmon-lab/punchcard/pkg/repository/memory"
	"github.com/secmon-lab/punchcard/pkg/repository/redis"
)

// testClock is a settable time source shared by a store under test
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sessionStoreFactory func(t *testing.T, clock *testClock) interfaces.SessionStore

func uniqueKey() model.SessionKey {
	n := time.Now().UnixNano()
	return model.SessionKey{
		TeamID:    fmt.Sprintf("T%d", n),
		UserID:    fmt.Sprintf("U%d", n),
		ChannelID: fmt.Sprintf("C%d", n),
	}
}

func newOpenSession(key model.SessionKey, now time.Time) *model.ClockSession {
	return &model.ClockSession{
		RecordID:     model.NewRecordID(),
		TeamID:       key.TeamID,
		UserID:       key.UserID,
		ChannelID:    key.ChannelID,
		DisplayName:  "alice",
		ProjectLabel: "general",
		StartAt:      now.Add(-time.Hour),
		ExpiresAt:    now.Add(model.SessionTTL),
	}
}

// runSessionStoreTest checks the acquire/peek/release contract. Stores
// whose expiry follows a server clock pass expiryControllable=false.
func runSessionStoreTest(t *testing.T, newStore sessionStoreFactory, expiryControllable bool) {
	t.Helper()

	t.Run("acquire on empty key succeeds", func(t *testing.T) {
		clock := newTestClock()
		store := newStore(t, clock)
		ctx := context.Background()
		key := uniqueKey()
		session := newOpenSession(key, clock.Now())

		existing, err := store.TryAcquireOpen(ctx, key, session)
		gt.NoError(t, err).Required()
		gt.Value(t, existing).Nil()

		got, err := store.PeekOpen(ctx, key)
		gt.NoError(t, err).Required()
		gt.Value(t, got).NotNil()
		gt.Value(t, got.RecordID).Equal(session.RecordID)
		gt.Bool(t, got.StartAt.Equal(session.StartAt)).True()
		gt.Value(t, got.ProjectLabel).Equal("general")
		gt.Value(t, got.Key()).Equal(key)
	})

	t.Run("second acquire conflicts without mutation", func(t *testing.T) {
		clock := newTestClock()
		store := newStore(t, clock)
		ctx := context.Background()
		key := uniqueKey()
		first := newOpenSession(key, clock.Now())

		_, err := store.TryAcquireOpen(ctx, key, first)
		gt.NoError(t, err).Required()

		second := newOpenSession(key, clock.Now())
		existing, err := store.TryAcquireOpen(ctx, key, second)
		gt.Bool(t, errors.Is(err, model.ErrAlreadyOpen)).True()
		gt.Value(t, existing).NotNil()
		gt.Value(t, existing.RecordID).Equal(first.RecordID)
		gt.Bool(t, existing.StartAt.Equal(first.StartAt)).True()

		got, err := store.PeekOpen(ctx, key)
		gt.NoError(t, err).Required()
		gt.Value(t, got.RecordID).Equal(first.RecordID)
	})

	t.Run("keys are independent per channel", func(t *testing.T) {
		clock := newTestClock()
		store := newStore(t, clock)
		ctx := context.Background()
		key := uniqueKey()
		other := key
		other.ChannelID += "x"

		_, err := store.TryAcquireOpen(ctx, key, newOpenSession(key, clock.Now()))
		gt.NoError(t, err).Required()
		_, err = store.TryAcquireOpen(ctx, other, newOpenSession(other, clock.Now()))
		gt.NoError(t, err).Required()
	})

	t.Run("release clears the key", func(t *testing.T) {
		clock := newTestClock()
		store := newStore(t, clock)
		ctx := context.Background()
		key := uniqueKey()

		_, err := store.TryAcquireOpen(ctx, key, newOpenSession(key, clock.Now()))
		gt.NoError(t, err).Required()
		gt.NoError(t, store.Release(ctx, key)).Required()

		got, err := store.PeekOpen(ctx, key)
		gt.NoError(t, err).Required()
		gt.Value(t, got).Nil()

		_, err = store.TryAcquireOpen(ctx, key, newOpenSession(key, clock.Now()))
		gt.NoError(t, err).Required()
	})

	t.Run("release of absent key is not an error", func(t *testing.T) {
		store := newStore(t, newTestClock())
		gt.NoError(t, store.Release(context.Background(), uniqueKey()))
	})

	t.Run("peek on absent key returns nil", func(t *testing.T) {
		store := newStore(t, newTestClock())
		got, err := store.PeekOpen(context.Background(), uniqueKey())
		gt.NoError(t, err).Required()
		gt.Value(t, got).Nil()
	})

	t.Run("invalid key is rejected", func(t *testing.T) {
		store := newStore(t, newTestClock())
		_, err := store.PeekOpen(context.Background(), model.SessionKey{TeamID: "T1"})
		gt.Bool(t, errors.Is(err, model.ErrInvalidKey)).True()
	})

	t.Run("concurrent acquires admit exactly one", func(t *testing.T) {
		clock := newTestClock()
		store := newStore(t, clock)
		ctx := context.Background()
		key := uniqueKey()

		var wg sync.WaitGroup
		var succeeded, conflicted atomic.Int32
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.TryAcquireOpen(ctx, key, newOpenSession(key, clock.Now()))
				switch {
				case err == nil:
					succeeded.Add(1)
				case errors.Is(err, model.ErrAlreadyOpen):
					conflicted.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		gt.Number(t, succeeded.Load()).Equal(int32(1))
		gt.Number(t, conflicted.Load()).Equal(int32(7))
	})

	t.Run("list open sessions of a team", func(t *testing.T) {
		clock := newTestClock()
		store := newStore(t, clock)
		lister, ok := store.(interfaces.SessionLister)
		if !ok {
			t.Skip("store does not list sessions")
		}
		ctx := context.Background()
		key := uniqueKey()
		other := key
		other.UserID += "x"

		_, err := store.TryAcquireOpen(ctx, key, newOpenSession(key, clock.Now()))
		gt.NoError(t, err).Required()
		_, err = store.TryAcquireOpen(ctx, other, newOpenSession(other, clock.Now()))
		gt.NoError(t, err).Required()

		sessions, err := lister.ListOpen(ctx, key.TeamID)
		gt.NoError(t, err).Required()
		gt.Array(t, sessions).Length(2)

		sessions, err = lister.ListOpen(ctx, key.TeamID+"-none")
		gt.NoError(t, err).Required()
		gt.Array(t, sessions).Length(0)
	})

	t.Run("release if match keeps a replaced entry", func(t *testing.T) {
		clock := newTestClock()
		store := newStore(t, clock)
		lister, ok := store.(interfaces.SessionLister)
		if !ok {
			t.Skip("store does not list sessions")
		}
		ctx := context.Background()
		key := uniqueKey()

		first := newOpenSession(key, clock.Now())
		_, err := store.TryAcquireOpen(ctx, key, first)
		gt.NoError(t, err).Required()
		gt.NoError(t, store.Release(ctx, key)).Required()

		second := newOpenSession(key, clock.Now())
		_, err = store.TryAcquireOpen(ctx, key, second)
		gt.NoError(t, err).Required()

		released, err := lister.ReleaseIfMatch(ctx, key, first.RecordID)
		gt.NoError(t, err).Required()
		gt.Bool(t, released).False()

		got, err := store.PeekOpen(ctx, key)
		gt.NoError(t, err).Required()
		gt.Value(t, got).NotNil().Required()
		gt.Value(t, got.RecordID).Equal(second.RecordID)

		released, err = lister.ReleaseIfMatch(ctx, key, second.RecordID)
		gt.NoError(t, err).Required()
		gt.Bool(t, released).True()

		got, err = store.PeekOpen(ctx, key)
		gt.NoError(t, err).Required()
		gt.Value(t, got).Nil()

		released, err = lister.ReleaseIfMatch(ctx, key, second.RecordID)
		gt.NoError(t, err).Required()
		gt.Bool(t, released).False()
	})

	if !expiryControllable {
		return
	}

	t.Run("expired record no longer blocks", func(t *testing.T) {
		clock := newTestClock()
		store := newStore(t, clock)
		ctx := context.Background()
		key := uniqueKey()

		_, err := store.TryAcquireOpen(ctx, key, newOpenSession(key, clock.Now()))
		gt.NoError(t, err).Required()

		clock.Advance(model.SessionTTL - time.Second)
		_, err = store.TryAcquireOpen(ctx, key, newOpenSession(key, clock.Now()))
		gt.Bool(t, errors.Is(err, model.ErrAlreadyOpen)).True()

		clock.Advance(time.Second)
		got, err := store.PeekOpen(ctx, key)
		gt.NoError(t, err).Required()
		gt.Value(t, got).Nil()

		_, err = store.TryAcquireOpen(ctx, key, newOpenSession(key, clock.Now()))
		gt.NoError(t, err).Required()
	})

	t.Run("purge removes expired records", func(t *testing.T) {
		clock := newTestClock()
		store := newStore(t, clock)
		purger, ok := store.(interfaces.SessionPurger)
		if !ok {
			t.Skip("store does not purge")
		}
		ctx := context.Background()
		key := uniqueKey()

		_, err := store.TryAcquireOpen(ctx, key, newOpenSession(key, clock.Now()))
		gt.NoError(t, err).Required()

		n, err := purger.PurgeExpired(ctx, clock.Now())
		gt.NoError(t, err).Required()
		gt.Number(t, n).Equal(0)

		n, err = purger.PurgeExpired(ctx, clock.Now().Add(model.SessionTTL))
		gt.NoError(t, err).Required()
		gt.Number(t, n).GreaterOrEqual(1)
	})
}

func TestMemorySessionStore(t *testing.T) {
	runSessionStoreTest(t, func(t *testing.T, clock *testClock) interfaces.SessionStore {
		return memory.New(memory.WithClock(clock.Now)).Session()
	}, true)
}

func newFirestoreRepository(t *testing.T, opts ...firestore.Option) *firestore.Firestore {
	t.Helper()

	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID not set")
	}

	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")
	if databaseID == "" {
		t.Skip("TEST_FIRESTORE_DATABASE_ID not set")
	}

	ctx := context.Background()
	prefix := fmt.Sprintf("test_%d", time.Now().UnixNano())
	repo, err := firestore.New(ctx, projectID, databaseID, append(opts, firestore.WithCollectionPrefix(prefix))...)
	gt.NoError(t, err).Required()
	t.Cleanup(func() {
		gt.NoError(t, repo.Close(ctx))
	})
	return repo
}

func TestFirestoreSessionStore(t *testing.T) {
	runSessionStoreTest(t, func(t *testing.T, clock *testClock) interfaces.SessionStore {
		return newFirestoreRepository(t, firestore.WithClock(clock.Now)).Session()
	}, true)
}

func TestRedisSessionStore(t *testing.T) {
	runSessionStoreTest(t, func(t *testing.T, clock *testClock) interfaces.SessionStore {
		url := os.Getenv("TEST_REDIS_URL")
		if url == "" {
			t.Skip("TEST_REDIS_URL not set")
		}

		ctx := context.Background()
		store, err := redis.New(ctx, url,
			redis.WithClock(clock.Now),
			redis.WithKeyPrefix(fmt.Sprintf("punchcard_test_%d:", time.Now().UnixNano())),
		)
		gt.NoError(t, err).Required()
		t.Cleanup(func() {
			gt.NoError(t, store.Close())
		})
		return store
	}, false)
}
