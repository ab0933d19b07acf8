package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/punchcard/pkg/domain/interfaces"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
	"github.com/secmon-lab/punchcard/pkg/domain/types"
	"github.com/secmon-lab/punchcard/pkg/utils/errutil"
	"github.com/secmon-lab/punchcard/pkg/utils/logging"
	"github.com/secmon-lab/punchcard/pkg/utils/metrics"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = time.Second
)

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the Sleeper used outside tests
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// AttemptFunc runs one whole transition. attempt starts at 1.
type AttemptFunc func(ctx context.Context, attempt int) (*model.Reply, error)

// RetryCoordinator runs a transition up to maxAttempts times and resolves
// the provisional acknowledgment with exactly one terminal message.
type RetryCoordinator struct {
	maxAttempts int
	backoff     time.Duration
	sleep       Sleeper
	now         func() time.Time
	metrics     *metrics.Metrics
}

func NewRetryCoordinator(sleep Sleeper, now func() time.Time, m *metrics.Metrics) *RetryCoordinator {
	if sleep == nil {
		sleep = SleepContext
	}
	if now == nil {
		now = time.Now
	}
	return &RetryCoordinator{
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoffBase,
		sleep:       sleep,
		now:         now,
		metrics:     m,
	}
}

// Execute calls fn until it succeeds, fails with a non-retryable error or
// runs out of attempts. The wait before attempt n+1 is n times the backoff
// base. Exhaustion is reported as model.ErrTransientFailureExhausted.
func (c *RetryCoordinator) Execute(ctx context.Context, action types.Action, fn AttemptFunc) (*model.Reply, int, error) {
	logger := logging.From(ctx)

	for attempt := 1; ; attempt++ {
		c.metrics.Attempt(action.String())

		reply, err := fn(ctx, attempt)
		if err == nil {
			return reply, attempt, nil
		}
		if !model.IsRetryable(err) {
			return nil, attempt, err
		}
		if attempt >= c.maxAttempts {
			return nil, attempt, exhausted(err, attempt)
		}

		delay := time.Duration(attempt) * c.backoff
		logger.Warn("attempt failed, retrying",
			"action", action.String(),
			"attempt", attempt,
			"delay", delay.String(),
			"error", err.Error())

		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return nil, attempt, exhausted(err, attempt)
		}
	}
}

func exhausted(last error, attempts int) error {
	return goerr.Wrap(model.ErrTransientFailureExhausted, last.Error(),
		goerr.V(model.AttemptsKey, attempts),
		goerr.V(model.LastErrorKey, last.Error()))
}

// Run executes fn and delivers the result through responder: the
// placeholder is replaced on success, and deleted then followed by a
// private message on failure. A success whose edit fails is posted as a
// new message after the placeholder is deleted. The returned error only
// reports delivery problems.
func (c *RetryCoordinator) Run(ctx context.Context, action types.Action, responder interfaces.Responder, fn AttemptFunc) (types.Outcome, error) {
	startedAt := c.now()
	reply, attempts, err := c.Execute(ctx, action, fn)

	outcome := types.OutcomeSuccess
	switch {
	case err == nil:
	case errors.Is(err, model.ErrTransientFailureExhausted):
		outcome = types.OutcomeExhausted
	default:
		outcome = types.OutcomeRejected
	}
	c.metrics.Outcome(action.String(), outcome.String(), c.now().Sub(startedAt))

	if err == nil {
		if replaceErr := responder.Replace(ctx, reply); replaceErr != nil {
			_ = errutil.Handle(ctx, replaceErr, "failed to replace provisional message, posting result")
			if deleteErr := responder.Delete(ctx); deleteErr != nil {
				_ = errutil.Handle(ctx, deleteErr, "failed to delete provisional message")
			}
			if deliverErr := responder.Post(ctx, reply); deliverErr != nil {
				return outcome, goerr.Wrap(deliverErr, "failed to deliver result", goerr.V("action", action.String()))
			}
		}
		return outcome, nil
	}

	if outcome == types.OutcomeExhausted {
		_ = errutil.Handle(ctx, err, "clock command exhausted retries")
	} else {
		logging.From(ctx).Warn("clock command rejected",
			"action", action.String(),
			"attempts", attempts,
			"error", err.Error())
	}

	if deleteErr := responder.Delete(ctx); deleteErr != nil {
		_ = errutil.Handle(ctx, deleteErr, "failed to delete provisional message")
	}
	if deliverErr := responder.PostPrivate(ctx, FailureReply(action, err)); deliverErr != nil {
		return outcome, goerr.Wrap(deliverErr, "failed to deliver failure report", goerr.V("action", action.String()))
	}
	return outcome, nil
}
