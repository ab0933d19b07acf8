package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/punchcard/pkg/domain/interfaces"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
	"github.com/secmon-lab/punchcard/pkg/domain/types"
	slacksvc "github.com/secmon-lab/punchcard/pkg/service/slack"
	"github.com/secmon-lab/punchcard/pkg/usecase"
	"github.com/secmon-lab/punchcard/pkg/utils/async"
	"github.com/secmon-lab/punchcard/pkg/utils/errutil"
	"github.com/secmon-lab/punchcard/pkg/utils/logging"
	"github.com/secmon-lab/punchcard/pkg/utils/safe"
	"github.com/slack-go/slack"
)

// maxSignatureSkew bounds the distance between the request timestamp and
// the local clock in either direction
const maxSignatureSkew = 5 * time.Minute

// verifySlackSignature checks the v0 signature of a Slack request. Requests
// stamped more than maxSignatureSkew away from now are rejected before the
// HMAC is computed.
func verifySlackSignature(header http.Header, body []byte, signingSecret string, now time.Time) error {
	stamp := header.Get("X-Slack-Request-Timestamp")
	if stamp == "" || header.Get("X-Slack-Signature") == "" {
		return goerr.New("missing signature headers")
	}

	ts, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return goerr.Wrap(err, "invalid timestamp", goerr.V("timestamp", stamp))
	}
	if skew := now.Sub(time.Unix(ts, 0)); skew > maxSignatureSkew || skew < -maxSignatureSkew {
		return goerr.New("timestamp out of range",
			goerr.V("timestamp", stamp),
			goerr.V("skew", skew.String()))
	}

	verifier, err := slack.NewSecretsVerifier(header, signingSecret)
	if err != nil {
		return goerr.Wrap(err, "failed to build secrets verifier")
	}
	if _, err := verifier.Write(body); err != nil {
		return goerr.Wrap(err, "failed to hash request body")
	}
	if err := verifier.Ensure(); err != nil {
		return goerr.Wrap(err, "signature mismatch")
	}
	return nil
}

// SlackSignatureMiddleware creates a middleware that verifies Slack request signatures
func SlackSignatureMiddleware(signingSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			body, err := io.ReadAll(r.Body)
			if err != nil {
				errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to read request body"), http.StatusBadRequest)
				return
			}
			safe.Close(ctx, r.Body)

			if err := verifySlackSignature(r.Header, body, signingSecret, time.Now()); err != nil {
				errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "slack signature verification failed"), http.StatusUnauthorized)
				return
			}

			// restore the body for the form parser of the next handler
			r.Body = io.NopCloser(bytes.NewBuffer(body))

			next.ServeHTTP(w, r)
		})
	}
}

// CommandUseCase runs slash commands
type CommandUseCase interface {
	Resolve(name string) (types.Action, bool)
	Help() *model.Reply
	Acknowledge(action types.Action) *model.Reply
	Execute(ctx context.Context, cmd *usecase.Command, responder interfaces.Responder) error
}

// SlackCommandHandler acknowledges slash commands within Slack's 3 second
// window and finishes them asynchronously through the response_url
type SlackCommandHandler struct {
	commands   CommandUseCase
	responders slacksvc.ResponderFactory
	dispatcher *async.Dispatcher
	now        func() time.Time
}

type SlackCommandOption func(*SlackCommandHandler)

// WithCommandClock replaces the clock stamping the receipt time
func WithCommandClock(now func() time.Time) SlackCommandOption {
	return func(h *SlackCommandHandler) {
		h.now = now
	}
}

func NewSlackCommandHandler(commands CommandUseCase, responders slacksvc.ResponderFactory, dispatcher *async.Dispatcher, opts ...SlackCommandOption) *SlackCommandHandler {
	h := &SlackCommandHandler{
		commands:   commands,
		responders: responders,
		dispatcher: dispatcher,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// unknownCommandText answers a command name that is not configured
const unknownCommandText = "%s は登録されていないコマンドです。"

func (h *SlackCommandHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	receivedAt := h.now()

	s, err := slack.SlashCommandParse(r)
	if err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to parse slash command"), http.StatusBadRequest)
		return
	}

	logger := logging.From(ctx).With(
		"command", s.Command,
		"team_id", s.TeamID,
		"channel_id", s.ChannelID,
		"user_id", s.UserID,
	)
	ctx = logging.With(ctx, logger)

	action, ok := h.commands.Resolve(s.Command)
	if !ok {
		logger.Warn("unknown slash command")
		writeReply(ctx, w, &model.Reply{Text: fmt.Sprintf(unknownCommandText, s.Command), Ephemeral: true})
		return
	}

	if action == types.ActionHelp {
		writeReply(ctx, w, h.commands.Help())
		return
	}

	if s.ResponseURL == "" {
		errutil.HandleHTTP(ctx, w, goerr.New("missing response_url"), http.StatusBadRequest)
		return
	}

	cmd := &usecase.Command{
		Name:        s.Command,
		Text:        s.Text,
		TeamID:      s.TeamID,
		ChannelID:   s.ChannelID,
		ChannelName: s.ChannelName,
		UserID:      s.UserID,
		UserName:    s.UserName,
		ReceivedAt:  receivedAt,
	}
	responder := h.responders(s.ResponseURL)

	writeReply(ctx, w, h.commands.Acknowledge(action))

	h.dispatcher.Dispatch(ctx, func(ctx context.Context) error {
		if err := h.commands.Execute(ctx, cmd, responder); err != nil {
			return goerr.Wrap(err, "failed to execute slash command", goerr.V("command", cmd.Name))
		}
		return nil
	})
}

type commandResponse struct {
	ResponseType string        `json:"response_type"`
	Text         string        `json:"text"`
	Blocks       []slack.Block `json:"blocks,omitempty"`
}

// writeReply answers the slash command request itself
func writeReply(ctx context.Context, w http.ResponseWriter, reply *model.Reply) {
	resp := commandResponse{
		ResponseType: slack.ResponseTypeInChannel,
		Text:         reply.Text,
		Blocks:       reply.Blocks,
	}
	if reply.Ephemeral {
		resp.ResponseType = slack.ResponseTypeEphemeral
	}

	data, err := json.Marshal(resp)
	if err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to marshal command response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	safe.Write(ctx, w, data)
}
