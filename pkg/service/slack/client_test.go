package slack_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
	"github.com/secmon-lab/punchcard/pkg/service/slack"
)

func newSlackAPI(t *testing.T, conversationsInfo *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/users.info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"user":{"id":"U1","team_id":"T1","name":"alice","real_name":"Alice Liddell","is_admin":true,"profile":{"display_name":"alice-d"}}}`))
	})
	mux.HandleFunc("/conversations.info", func(w http.ResponseWriter, r *http.Request) {
		conversationsInfo.Add(1)
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.Form.Get("channel") != "C1" {
			_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"channel":{"id":"C1","name":"general"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNew(t *testing.T) {
	t.Run("returns error when token is empty", func(t *testing.T) {
		_, err := slack.New("")
		gt.Value(t, err).NotNil()
	})

	t.Run("creates service when token is provided", func(t *testing.T) {
		svc, err := slack.New("test-token")
		gt.NoError(t, err).Required()
		gt.Value(t, svc).NotNil()
	})
}

func TestGetUserInfo(t *testing.T) {
	var calls atomic.Int32
	srv := newSlackAPI(t, &calls)
	svc, err := slack.New("xoxb-test", slack.WithAPIURL(srv.URL+"/"))
	gt.NoError(t, err).Required()

	user, err := svc.GetUserInfo(context.Background(), "U1")
	gt.NoError(t, err).Required()
	gt.Value(t, user.TeamID).Equal("T1")
	gt.Value(t, user.Label()).Equal("alice-d")
	gt.Bool(t, model.IsAuthorized(user.Permission, model.PermissionManage)).True()
}

func TestGetChannelNames(t *testing.T) {
	var calls atomic.Int32
	srv := newSlackAPI(t, &calls)
	svc, err := slack.New("xoxb-test", slack.WithAPIURL(srv.URL+"/"))
	gt.NoError(t, err).Required()
	ctx := context.Background()

	names, err := svc.GetChannelNames(ctx, []string{"C1", "C404"})
	gt.NoError(t, err).Required()
	gt.Value(t, names).Equal(map[string]string{"C1": "general"})

	// Cached
	names, err = svc.GetChannelNames(ctx, []string{"C1"})
	gt.NoError(t, err).Required()
	gt.Value(t, names["C1"]).Equal("general")
	gt.Number(t, calls.Load()).Equal(int32(2))
}

func TestUserLabel(t *testing.T) {
	gt.Value(t, (&slack.User{Name: "alice"}).Label()).Equal("alice")
	gt.Value(t, (&slack.User{Name: "alice", RealName: "Alice"}).Label()).Equal("Alice")
}
