package model

import "github.com/slack-go/slack"

// Reply is a message delivered through a slash command response_url
type Reply struct {
	Text   string
	Blocks []slack.Block

	// Ephemeral keeps a replaced message visible to the invoking user only
	Ephemeral bool
}
