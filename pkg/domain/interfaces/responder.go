package interfaces

import (
	"context"

	"github.com/secmon-lab/punchcard/pkg/domain/model"
)

// Responder resolves the provisional acknowledgment of one slash command
type Responder interface {
	// Replace edits the placeholder in place, visible to the channel
	Replace(ctx context.Context, reply *model.Reply) error
	// Delete removes the placeholder
	Delete(ctx context.Context) error
	// Post sends reply as a new message, leaving the placeholder alone
	Post(ctx context.Context, reply *model.Reply) error
	// PostPrivate posts a message only the invoking user can see
	PostPrivate(ctx context.Context, reply *model.Reply) error
}
