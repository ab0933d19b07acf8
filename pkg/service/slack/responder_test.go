package slack_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
	"github.com/secmon-lab/punchcard/pkg/service/slack"
)

type capturedWebhook struct {
	mu       sync.Mutex
	payloads []map[string]any
}

func (c *capturedWebhook) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var payload map[string]any
	_ = json.Unmarshal(body, &payload)
	c.mu.Lock()
	c.payloads = append(c.payloads, payload)
	c.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func TestResponder(t *testing.T) {
	captured := &capturedWebhook{}
	srv := httptest.NewServer(http.HandlerFunc(captured.handler))
	defer srv.Close()

	ctx := context.Background()
	r := slack.NewResponder(srv.URL, srv.Client())

	gt.NoError(t, r.Replace(ctx, &model.Reply{Text: "done"})).Required()
	gt.NoError(t, r.Delete(ctx)).Required()
	gt.NoError(t, r.PostPrivate(ctx, &model.Reply{Text: "failed"})).Required()
	gt.NoError(t, r.Post(ctx, &model.Reply{Text: "again"})).Required()

	gt.Array(t, captured.payloads).Length(4)

	gt.Value(t, captured.payloads[0]["response_type"]).Equal(any("in_channel"))
	gt.Value(t, captured.payloads[0]["replace_original"]).Equal(any(true))
	gt.Value(t, captured.payloads[0]["text"]).Equal(any("done"))

	gt.Value(t, captured.payloads[1]["delete_original"]).Equal(any(true))

	gt.Value(t, captured.payloads[2]["response_type"]).Equal(any("ephemeral"))
	gt.Bool(t, captured.payloads[2]["replace_original"] == true).False()

	gt.Value(t, captured.payloads[3]["response_type"]).Equal(any("in_channel"))
	gt.Value(t, captured.payloads[3]["text"]).Equal(any("again"))
	gt.Bool(t, captured.payloads[3]["replace_original"] == true).False()
}

func TestResponderReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	err := slack.NewResponder(srv.URL, srv.Client()).Delete(context.Background())
	gt.Error(t, err)
}
