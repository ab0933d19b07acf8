package slack

import (
	"context"

	"github.com/secmon-lab/punchcard/pkg/domain/model"
)

// Service provides interface to Slack API for slash command handling
type Service interface {
	// GetChannelNames retrieves channel names for the given IDs (with caching)
	// Channels that cannot be resolved are omitted; callers fall back to the
	// name sent with the command.
	GetChannelNames(ctx context.Context, ids []string) (map[string]string, error)

	// GetUserInfo retrieves user information for the given user ID
	GetUserInfo(ctx context.Context, userID string) (*User, error)
}

// User represents a Slack user
type User struct {
	ID          string
	TeamID      string
	Name        string
	RealName    string
	DisplayName string
	Permission  model.Permission
}

// Label returns the name shown in the ledger
func (u *User) Label() string {
	switch {
	case u.DisplayName != "":
		return u.DisplayName
	case u.RealName != "":
		return u.RealName
	default:
		return u.Name
	}
}
