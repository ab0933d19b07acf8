package slack

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
	"github.com/secmon-lab/punchcard/pkg/utils/logging"
	"github.com/slack-go/slack"
)

const (
	// DefaultCacheTTL is the default TTL for channel name cache
	DefaultCacheTTL = 10 * time.Minute
)

// cacheEntry holds a cached channel name with expiration
type cacheEntry struct {
	name      string
	expiresAt time.Time
}

// client implements Service interface
type client struct {
	api      *slack.Client
	cacheTTL time.Duration
	apiOpts  []slack.Option

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// Option is a functional option for client configuration
type Option func(*client)

// WithCacheTTL sets the TTL for channel name cache
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *client) {
		c.cacheTTL = ttl
	}
}

// WithAPIURL points the client at another Slack API endpoint
func WithAPIURL(url string) Option {
	return func(c *client) {
		c.apiOpts = append(c.apiOpts, slack.OptionAPIURL(url))
	}
}

// New creates a new Slack service with the provided bot token
func New(token string, opts ...Option) (Service, error) {
	if token == "" {
		return nil, goerr.New("Slack bot token is required")
	}

	c := &client{
		cacheTTL: DefaultCacheTTL,
		cache:    make(map[string]cacheEntry),
	}

	for _, opt := range opts {
		opt(c)
	}
	c.api = slack.New(token, c.apiOpts...)

	return c, nil
}

// GetChannelNames retrieves channel names for the given IDs with caching
func (c *client) GetChannelNames(ctx context.Context, ids []string) (map[string]string, error) {
	result := make(map[string]string)
	var missingIDs []string

	now := time.Now()

	// Check cache first
	c.mu.RLock()
	for _, id := range ids {
		if entry, ok := c.cache[id]; ok && entry.expiresAt.After(now) {
			result[id] = entry.name
		} else {
			missingIDs = append(missingIDs, id)
		}
	}
	c.mu.RUnlock()

	if len(missingIDs) == 0 {
		return result, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range missingIDs {
		// Double-check cache after acquiring write lock
		if entry, ok := c.cache[id]; ok && entry.expiresAt.After(now) {
			result[id] = entry.name
			continue
		}

		info, err := c.api.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{
			ChannelID: id,
		})
		if err != nil {
			// Private channels the bot is not in end up here
			logging.From(ctx).Debug("failed to get channel info", "channel_id", id, "error", err.Error())
			continue
		}

		result[id] = info.Name
		c.cache[id] = cacheEntry{
			name:      info.Name,
			expiresAt: now.Add(c.cacheTTL),
		}
	}

	return result, nil
}

// GetUserInfo retrieves user information for the given user ID
func (c *client) GetUserInfo(ctx context.Context, userID string) (*User, error) {
	user, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get user info", goerr.V(model.UserIDKey, userID))
	}

	return &User{
		ID:          user.ID,
		TeamID:      user.TeamID,
		Name:        user.Name,
		RealName:    user.RealName,
		DisplayName: user.Profile.DisplayName,
		Permission:  model.NewPermission(user.IsAdmin, user.IsOwner, user.IsPrimaryOwner),
	}, nil
}
