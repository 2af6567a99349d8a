package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/m3rciful/grinbot/core/logger"
	"github.com/m3rciful/grinbot/core/netutil"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Client wraps the mautrix client with the few calls the bot needs.
type Client struct {
	cli *mautrix.Client

	mu      sync.Mutex
	members map[id.RoomID]int
}

// NewClient logs in with an access token.
func NewClient(homeserver, userID, accessToken, deviceID string) (*Client, error) {
	cli, err := mautrix.NewClient(homeserver, id.UserID(userID), accessToken)
	if err != nil {
		return nil, fmt.Errorf("matrix: create client: %w", err)
	}
	if deviceID != "" {
		cli.DeviceID = id.DeviceID(deviceID)
	}
	// long enough for a /sync long poll
	cli.Client = netutil.NewHTTPClient(netutil.ClientOptions{Timeout: 3 * time.Minute})
	return &Client{cli: cli, members: make(map[id.RoomID]int)}, nil
}

// UserID is the bot's own user id.
func (c *Client) UserID() id.UserID {
	return c.cli.UserID
}

// Reply sends a formatted text message with a plain fallback body.
func (c *Client) Reply(ctx context.Context, room id.RoomID, html, plain string) error {
	content := event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    plain,
	}
	if html != "" {
		content.Format = event.FormatHTML
		content.FormattedBody = html
	}
	if _, err := c.cli.SendMessageEvent(ctx, room, event.EventMessage, &content); err != nil {
		return fmt.Errorf("matrix: send message: %w", err)
	}
	return nil
}

// Join accepts an invite.
func (c *Client) Join(ctx context.Context, room id.RoomID) error {
	if _, err := c.cli.JoinRoomByID(ctx, room); err != nil {
		return fmt.Errorf("matrix: join %s: %w", room, err)
	}
	return nil
}

// Members returns the joined member count of a room. Counts are cached
// until the room's membership changes.
func (c *Client) Members(ctx context.Context, room id.RoomID) (int, error) {
	c.mu.Lock()
	n, ok := c.members[room]
	c.mu.Unlock()
	if ok {
		return n, nil
	}
	resp, err := c.cli.JoinedMembers(ctx, room)
	if err != nil {
		return 0, fmt.Errorf("matrix: joined members: %w", err)
	}
	n = len(resp.Joined)
	c.mu.Lock()
	c.members[room] = n
	c.mu.Unlock()
	return n, nil
}

func (c *Client) forgetMembers(room id.RoomID) {
	c.mu.Lock()
	delete(c.members, room)
	c.mu.Unlock()
}

// Sync registers the handlers and syncs until ctx is done, reconnecting
// with exponential backoff after homeserver errors.
func (c *Client) Sync(ctx context.Context, onMessage, onMember mautrix.EventHandler) error {
	syncer, ok := c.cli.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("matrix: unexpected syncer %T", c.cli.Syncer)
	}
	syncer.OnEventType(event.EventMessage, onMessage)
	syncer.OnEventType(event.StateMember, func(ctx context.Context, evt *event.Event) {
		c.forgetMembers(evt.RoomID)
		if onMember != nil {
			onMember(ctx, evt)
		}
	})

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 2 * time.Second
	policy.MaxInterval = 5 * time.Minute
	for {
		started := time.Now()
		err := c.cli.SyncWithContext(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			return nil
		}
		// a sync that ran for a while was healthy
		if time.Since(started) > policy.MaxInterval {
			policy.Reset()
		}
		wait := policy.NextBackOff()
		logger.Error(ctx, "matrix", "sync.retry",
			slog.String("status", "retry"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.Duration("backoff", wait),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// StatusOf returns the homeserver's HTTP status for a failed request, 0 if
// the request never got a response.
func StatusOf(err error) int {
	var httpErr mautrix.HTTPError
	if !errors.As(err, &httpErr) {
		return 0
	}
	if httpErr.Response != nil {
		return httpErr.Response.StatusCode
	}
	if httpErr.RespError != nil {
		return httpErr.RespError.StatusCode
	}
	return 0
}

// RetryAfterOf reads retry_after_ms from an M_LIMIT_EXCEEDED response.
func RetryAfterOf(err error) time.Duration {
	var httpErr mautrix.HTTPError
	if !errors.As(err, &httpErr) || httpErr.RespError == nil {
		return 0
	}
	ms, ok := httpErr.RespError.ExtraData["retry_after_ms"].(float64)
	if !ok || ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
