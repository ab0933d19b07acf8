package slack

import (
	"context"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/punchcard/pkg/domain/interfaces"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
	"github.com/slack-go/slack"
)

// DefaultResponseTimeout bounds one response_url delivery
const DefaultResponseTimeout = 10 * time.Second

// Responder delivers replies through a slash command response_url
type Responder struct {
	url        string
	httpClient *http.Client
}

var _ interfaces.Responder = &Responder{}

// NewResponder returns a Responder for one slash command invocation
func NewResponder(responseURL string, httpClient *http.Client) *Responder {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultResponseTimeout}
	}
	return &Responder{url: responseURL, httpClient: httpClient}
}

// ResponderFactory builds a Responder per command
type ResponderFactory func(responseURL string) interfaces.Responder

// NewResponderFactory returns a factory sharing httpClient
func NewResponderFactory(httpClient *http.Client) ResponderFactory {
	return func(responseURL string) interfaces.Responder {
		return NewResponder(responseURL, httpClient)
	}
}

func blocksOf(reply *model.Reply) *slack.Blocks {
	if len(reply.Blocks) == 0 {
		return nil
	}
	return &slack.Blocks{BlockSet: reply.Blocks}
}

func (r *Responder) post(ctx context.Context, msg *slack.WebhookMessage, op string) error {
	if err := slack.PostWebhookCustomHTTPContext(ctx, r.url, r.httpClient, msg); err != nil {
		return goerr.Wrap(err, "failed to post to response_url", goerr.V("op", op))
	}
	return nil
}

// Replace edits the provisional message in place. It is visible to the
// channel unless reply.Ephemeral is set.
func (r *Responder) Replace(ctx context.Context, reply *model.Reply) error {
	responseType := slack.ResponseTypeInChannel
	if reply.Ephemeral {
		responseType = slack.ResponseTypeEphemeral
	}
	return r.post(ctx, &slack.WebhookMessage{
		Text:            reply.Text,
		Blocks:          blocksOf(reply),
		ResponseType:    responseType,
		ReplaceOriginal: true,
	}, "replace")
}

// Delete removes the provisional message
func (r *Responder) Delete(ctx context.Context) error {
	return r.post(ctx, &slack.WebhookMessage{
		DeleteOriginal: true,
	}, "delete")
}

// Post sends reply as a new message. It is visible to the channel unless
// reply.Ephemeral is set.
func (r *Responder) Post(ctx context.Context, reply *model.Reply) error {
	responseType := slack.ResponseTypeInChannel
	if reply.Ephemeral {
		responseType = slack.ResponseTypeEphemeral
	}
	return r.post(ctx, &slack.WebhookMessage{
		Text:         reply.Text,
		Blocks:       blocksOf(reply),
		ResponseType: responseType,
	}, "post")
}

// PostPrivate posts a message only the invoking user can see
func (r *Responder) PostPrivate(ctx context.Context, reply *model.Reply) error {
	return r.post(ctx, &slack.WebhookMessage{
		Text:         reply.Text,
		Blocks:       blocksOf(reply),
		ResponseType: slack.ResponseTypeEphemeral,
	}, "post private")
}
