package keybase

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/grinbot/core/engine"
	"github.com/m3rciful/grinbot/core/logger"
	"github.com/m3rciful/grinbot/core/markup"
	"github.com/m3rciful/grinbot/core/sender"
)

// Transport is the transport name used in log context.
const Transport = "keybase"

const maxLineBytes = 1 << 20

// Handler is the part of the engine the service needs.
type Handler interface {
	Handle(ctx context.Context, u engine.Update) engine.OutgoingMessage
}

// Replier delivers a rendered reply to a channel.
type Replier interface {
	Send(ctx context.Context, ch Channel, body string) error
}

// ServiceOptions configure a Service.
type ServiceOptions struct {
	Handler Handler
	Replier Replier
	// Self is the bot's own username; its messages are ignored.
	Self       string
	Normalizer *Normalizer
	Dispatcher *sender.Dispatcher
}

// Service feeds notifications through the engine one at a time and replies
// in the originating channel.
type Service struct {
	handler Handler
	replier Replier
	self    string
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
		disp = sender.NewDispatcher(sender.Options{Component: "keybase.sender"})
	}
	return &Service{
		handler: opts.Handler,
		replier: opts.Replier,
		self:    opts.Self,
		norm:    norm,
		disp:    disp,
	}
}

// Serve reads api-listen lines from r until EOF or ctx is done.
func (s *Service) Serve(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		n, err := DecodeNotification([]byte(line))
		if err != nil {
			logger.Warn(ctx, "keybase", "update.decode_failed",
				slog.String("status", "fail"),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
		}
		// Undecodable lines still pass through so they end up as Unknown.
		if err := s.Handle(ctx, n); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("keybase: read notifications: %w", err)
	}
	return nil
}

// Handle runs one notification through the engine and sends the reply.
func (s *Service) Handle(ctx context.Context, n Notification) error {
	start := time.Now()
	ctx = logger.WithRID(logger.WithTransport(ctx, Transport), uuid.NewString())
	if n.Msg != nil && s.self != "" && strings.EqualFold(n.Msg.Sender.Username, s.self) {
		logger.Debug(ctx, "keybase", "update.skip", slog.String("reason", "own_message"))
		return nil
	}

	u, err := engine.Canonical[Notification](s.norm, n)
	ctx = logger.WithConversation(ctx, u.ConversationID)
	if err != nil {
		logger.Warn(ctx, "keybase", "update.malformed",
			slog.String("status", "skip"),
			slog.String("type", n.Type),
		)
	}
	if logger.ShouldSampleDebug() && n.Msg != nil {
		logger.Debug(ctx, "keybase", "update.received",
			slog.Int64("msg_id", n.Msg.ID),
			slog.String("channel", n.Msg.Channel.Name),
			slog.String("payload", logger.SanitizeLimit(u.Text, 256)),
		)
	}

	out := s.handler.Handle(ctx, u)
	if out.ConversationID == engine.UnroutableConversation {
		s.summary(ctx, start, "skip", nil)
		return nil
	}
	ch, ok := s.norm.Channel(out.ConversationID)
	if !ok {
		err := fmt.Errorf("keybase: no channel for conversation %d", out.ConversationID)
		s.summary(ctx, start, "fail", err)
		return err
	}

	body := markup.Keybase(out.Body())
	err = s.disp.Do(ctx, "send.reply", "chat.send", func(ctx context.Context) error {
		return s.replier.Send(ctx, ch, body)
	})
	s.summary(ctx, start, "", err)
	return err
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
	logger.Info(ctx, "keybase", "handler.handled", attrs...)
}
