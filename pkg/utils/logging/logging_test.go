package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/punchcard/pkg/utils/logging"
)

func TestFromFallsBackToDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logging.SetDefault(logger)

	gt.Value(t, logging.From(context.Background())).Equal(logger)
}

func TestWithStoresLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil)).With("request_id", "r-1")
	ctx := logging.With(context.Background(), logger)

	logging.From(ctx).Info("hello")
	gt.String(t, buf.String()).Contains("request_id=r-1")
}

func TestSetDefaultIgnoresNil(t *testing.T) {
	current := logging.Default()
	logging.SetDefault(nil)
	gt.Value(t, logging.Default()).Equal(current)
}
