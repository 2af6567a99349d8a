package matrix

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/grinbot/core/engine"
	"github.com/m3rciful/grinbot/core/logger"
	"github.com/m3rciful/grinbot/core/markup"
	"github.com/m3rciful/grinbot/core/sender"

	"github.com/google/uuid"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Transport is the transport name used in log context.
const Transport = "matrix"

// Handler is the part of the engine the service needs.
type Handler interface {
	Handle(ctx context.Context, u engine.Update) engine.OutgoingMessage
}

// Room is what the service needs from the homeserver.
type Room interface {
	Reply(ctx context.Context, room id.RoomID, html, plain string) error
	Members(ctx context.Context, room id.RoomID) (int, error)
	Join(ctx context.Context, room id.RoomID) error
}

// ServiceOptions configure a Service.
type ServiceOptions struct {
	Handler Handler
	Room    Room
	// Self is the bot's user id; its own events are ignored.
	Self id.UserID
	// Owner is the only user whose invites are accepted.
	Owner id.UserID
	// Since drops events older than the service start.
	Since      time.Time
	Normalizer *Normalizer
	Dispatcher *sender.Dispatcher
}

// Service runs timeline events through the engine on the sync goroutine.
type Service struct {
	handler Handler
	room    Room
	self    id.UserID
	owner   id.UserID
	sinceMS int64
	norm    *Normalizer
	disp    *sender.Dispatcher
}

// NewService fills defaults for a missing normalizer or dispatcher.
func NewService(opts ServiceOptions) *Service {
	norm := opts.Normalizer
	if norm == nil {
		norm = NewNormalizer()
	}
	disp := opts.Dispatcher
	if disp == nil {
		disp = sender.NewDispatcher(sender.Options{Component: "matrix.sender"})
	}
	var since int64
	if !opts.Since.IsZero() {
		since = opts.Since.UnixMilli()
	}
	return &Service{
		handler: opts.Handler,
		room:    opts.Room,
		self:    opts.Self,
		owner:   opts.Owner,
		sinceMS: since,
		norm:    norm,
		disp:    disp,
	}
}

// HandleMessage is the m.room.message handler.
func (s *Service) HandleMessage(ctx context.Context, evt *event.Event) {
	_ = s.Handle(ctx, evt)
}

// Handle runs one message event through the engine and replies in its room.
func (s *Service) Handle(ctx context.Context, evt *event.Event) error {
	start := time.Now()
	ctx = logger.WithRID(logger.WithTransport(ctx, Transport), uuid.NewString())
	if evt != nil {
		if evt.Sender == s.self {
			return nil
		}
		if evt.Timestamp < s.sinceMS {
			logger.Debug(ctx, "matrix", "update.skip", slog.String("reason", "before_start"))
			return nil
		}
		if msg := evt.Content.AsMessage(); msg != nil && msg.RelatesTo != nil && msg.RelatesTo.Type == event.RelReplace {
			logger.Debug(ctx, "matrix", "update.skip", slog.String("reason", "edit"))
			return nil
		}
	}

	n := Notification{Event: evt}
	if evt != nil && evt.RoomID != "" {
		members, err := s.room.Members(ctx, evt.RoomID)
		if err != nil {
			// Unknown room size is treated as a group.
			logger.Warn(ctx, "matrix", "room.members",
				slog.String("status", "fail"),
				slog.String("room_id", evt.RoomID.String()),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
			members = 3
		}
		n.Members = members
	}

	u, err := engine.Canonical[Notification](s.norm, n)
	ctx = logger.WithConversation(ctx, u.ConversationID)
	if err != nil {
		logger.Warn(ctx, "matrix", "update.malformed", slog.String("status", "skip"))
	}

	out := s.handler.Handle(ctx, u)
	if out.ConversationID == engine.UnroutableConversation {
		s.summary(ctx, start, "skip", nil)
		return nil
	}
	room, ok := s.norm.Room(out.ConversationID)
	if !ok {
		err := fmt.Errorf("matrix: no room for conversation %d", out.ConversationID)
		s.summary(ctx, start, "fail", err)
		return err
	}

	body := out.Body()
	html, herr := markup.HTML(body)
	if herr != nil {
		logger.Warn(ctx, "matrix", "render.html", slog.String("err", herr.Error()))
		html = ""
	}
	plain := markup.Plain(body)
	err = s.disp.Do(ctx, "send.reply", "m.room.message", func(ctx context.Context) error {
		return s.room.Reply(ctx, room, html, plain)
	})
	s.summary(ctx, start, "", err)
	return err
}

// HandleMember accepts invites from the owner and ignores everyone else.
func (s *Service) HandleMember(ctx context.Context, evt *event.Event) {
	if evt == nil || evt.GetStateKey() != s.self.String() {
		return
	}
	member := evt.Content.AsMember()
	if member == nil || member.Membership != event.MembershipInvite {
		return
	}
	ctx = logger.WithTransport(ctx, Transport)
	attrs := []slog.Attr{
		slog.String("room_id", evt.RoomID.String()),
		slog.String("sender", evt.Sender.String()),
	}
	if evt.Sender != s.owner {
		logger.Warn(ctx, "matrix", "invite.ignored", append(attrs, slog.String("status", "skip"))...)
		return
	}
	if err := s.room.Join(ctx, evt.RoomID); err != nil {
		logger.Error(ctx, "matrix", "invite.join", append(attrs,
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)...)
		return
	}
	logger.Info(ctx, "matrix", "invite.join", append(attrs, slog.String("status", "ok"))...)
}

func (s *Service) summary(ctx context.Context, start time.Time, status string, err error) {
	if status == "" {
		status = "ok"
		if err != nil {
			status = "fail"
		}
	}
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
	}
	logger.Info(ctx, "matrix", "handler.handled", attrs...)
}
