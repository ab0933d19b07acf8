package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/punchcard/pkg/domain/interfaces"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
	"github.com/secmon-lab/punchcard/pkg/repository/memory"
	"github.com/secmon-lab/punchcard/pkg/service/sheets"
	slacksvc "github.com/secmon-lab/punchcard/pkg/service/slack"
	"github.com/secmon-lab/punchcard/pkg/usecase"
)

const (
	testTeamID     = "T1"
	testDocumentID = "doc1"
)

var errUnavailable = goerr.Wrap(model.ErrBackendUnavailable, "deadline exceeded")

// jst builds a wall clock instant in the organizational timezone
func jst(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, model.JST)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func (s *recordingSleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

type responderCall struct {
	Op    string
	Reply *model.Reply
}

type fakeResponder struct {
	mu    sync.Mutex
	calls []responderCall

	// replaceErr fails every Replace
	replaceErr error
}

var _ interfaces.Responder = &fakeResponder{}

func (r *fakeResponder) record(op string, reply *model.Reply) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, responderCall{Op: op, Reply: reply})
}

func (r *fakeResponder) Replace(ctx context.Context, reply *model.Reply) error {
	r.record("replace", reply)
	return r.replaceErr
}

func (r *fakeResponder) Post(ctx context.Context, reply *model.Reply) error {
	r.record("post", reply)
	return nil
}

func (r *fakeResponder) Delete(ctx context.Context) error {
	r.record("delete", nil)
	return nil
}

func (r *fakeResponder) PostPrivate(ctx context.Context, reply *model.Reply) error {
	r.record("private", reply)
	return nil
}

func (r *fakeResponder) Calls() []responderCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]responderCall(nil), r.calls...)
}

type fakeSlack struct {
	users    map[string]*slacksvc.User
	channels map[string]string
}

var _ slacksvc.Service = &fakeSlack{}

func (f *fakeSlack) GetChannelNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := map[string]string{}
	for _, id := range ids {
		if name, ok := f.channels[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

func (f *fakeSlack) GetUserInfo(ctx context.Context, userID string) (*slacksvc.User, error) {
	if u, ok := f.users[userID]; ok {
		return u, nil
	}
	return nil, goerr.New("user not found", goerr.V("user_id", userID))
}

type testEnv struct {
	clock   *testClock
	repo    *memory.Memory
	ledger  *sheets.Memory
	sleeper *recordingSleeper
	uc      *usecase.UseCases
}

func newTestEnv(t *testing.T, now time.Time, opts ...usecase.Option) *testEnv {
	t.Helper()
	env := &testEnv{
		clock:   &testClock{now: now},
		ledger:  sheets.NewMemory(),
		sleeper: &recordingSleeper{},
	}
	env.repo = memory.New(memory.WithClock(env.clock.Now))
	env.ledger.AddDocument(testDocumentID)

	gt.NoError(t, env.repo.Organization().Put(context.Background(), &model.Organization{
		TeamID:   testTeamID,
		Document: model.Document{ID: testDocumentID, URL: model.SpreadsheetURL(testDocumentID)},
	})).Required()

	opts = append([]usecase.Option{
		usecase.WithClock(env.clock.Now),
		usecase.WithSleeper(env.sleeper.Sleep),
	}, opts...)
	env.uc = usecase.New(env.repo, env.ledger, opts...)
	return env
}

func (e *testEnv) key(userID, channelID string) model.SessionKey {
	return model.SessionKey{TeamID: testTeamID, UserID: userID, ChannelID: channelID}
}

// dataRows returns the ledger rows of a month without the header
func (e *testEnv) dataRows(month string) [][]string {
	rows := e.ledger.Rows(testDocumentID, month)
	if len(rows) == 0 {
		return nil
	}
	return rows[1:]
}
