package errutil

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/punchcard/pkg/utils/logging"
)

var sentryEnabled atomic.Bool

// EnableSentry makes Handle forward errors to the Sentry hub. sentry.Init
// must have been called before.
func EnableSentry() {
	sentryEnabled.Store(true)
}

func DisableSentry() {
	sentryEnabled.Store(false)
}

// Handle logs the error with a message and reports it to Sentry when enabled.
// The error is returned as-is.
func Handle(ctx context.Context, err error, msg string) error {
	if err == nil {
		return nil
	}

	logger := logging.From(ctx)

	var ge *goerr.Error
	if errors.As(err, &ge) {
		logger.Error(msg,
			"error", err.Error(),
			"values", ge.Values(),
			"stack", ge.Stacks(),
		)
	} else {
		logger.Error(msg, "error", err.Error())
	}

	capture(ctx, err, msg)
	return err
}

// HandleHTTP logs the error and writes an appropriate HTTP error response.
func HandleHTTP(ctx context.Context, w http.ResponseWriter, err error, statusCode int) {
	if err == nil {
		return
	}

	logger := logging.From(ctx)

	var ge *goerr.Error
	if errors.As(err, &ge) {
		logger.Error("HTTP error",
			"status", statusCode,
			"error", err.Error(),
			"values", ge.Values(),
			"stack", ge.Stacks(),
		)
	} else {
		logger.Error("HTTP error",
			"status", statusCode,
			"error", err.Error(),
		)
	}

	if statusCode >= http.StatusInternalServerError {
		capture(ctx, err, "HTTP error")
	}

	// Internal details stay in the log
	http.Error(w, http.StatusText(statusCode), statusCode)
}

func capture(ctx context.Context, err error, msg string) {
	if !sentryEnabled.Load() {
		return
	}

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}

	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("message", msg)
		var ge *goerr.Error
		if errors.As(err, &ge) {
			for k, v := range ge.Values() {
				scope.SetExtra(k, v)
			}
		}
		hub.CaptureException(err)
	})
}
