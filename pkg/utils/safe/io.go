package safe

import (
	"context"
	"io"
	"log/slog"

	"github.com/secmon-lab/punchcard/pkg/utils/logging"
)

// Close closes closer and logs the error. A nil closer is ignored.
func Close(ctx context.Context, closer io.Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.From(ctx).Error("failed to close", slog.Any("error", err))
	}
}

// Write writes a response body after the header is committed, when the only
// thing left to do with an error is to log it
func Write(ctx context.Context, w io.Writer, data []byte) {
	if w == nil {
		return
	}
	if _, err := w.Write(data); err != nil {
		logging.From(ctx).Error("failed to write", slog.Any("error", err))
	}
}
