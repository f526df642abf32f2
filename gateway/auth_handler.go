package gateway

import (
	"context"
	"time"

	"quizduel-server/matcherrors"
	"quizduel-server/match"
	"quizduel-server/presence"
)

// handleAuthFrame resolves the first inbound frame as an auth token and,
// on success, hands the resolved identity to the presence registry
// (spec.md §4.1). Any failure closes the channel with no side effects.
func (c *Client) handleAuthFrame(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	userID, name, rating, err := c.hub.AuthResolver.ResolveToken(ctx, token)
	if err != nil {
		c.log.Debug("token rejected", "error", matcherrors.ErrInvalidToken, "cause", err)
		c.SendText("invalid token")
		c.Close()
		return
	}

	c.UserID = userID
	c.Name = name
	c.Rating = rating
	c.authenticated = true
	c.SendText("token accepted")

	result := c.hub.Presence.Attach(userID, name, rating, c)
	switch result.Outcome {
	case presence.AttachQueueNew:
		c.SendText("Search started")

	case presence.AttachReplaceQueued:
		if old, ok := result.OldChannel.(match.Conn); ok {
			old.SendText("opponent disconnected")
			old.Close()
		}

	case presence.AttachReconnect:
		if result.Target == nil || !result.Target.Reattach(c) {
			c.log.Debug("reattach rejected", "error", matcherrors.ErrNotDisconnected, "user_id", userID)
			c.SendText("invalid token")
			c.Close()
		}

	case presence.AttachAlreadyInMatch:
		c.log.Debug("connection rejected", "error", matcherrors.ErrAlreadyInMatch, "user_id", userID)
		c.SendText("already in a match")
		c.Close()
	}
}
