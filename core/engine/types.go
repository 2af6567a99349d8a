// Package engine interprets chat commands and computes the next bot state.
// It is transport-agnostic: transports hand it canonical updates and send
// back whatever Render produces.
package engine

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// Screen identifies the logical view currently shown to the user.
type Screen int

const (
	ScreenHome Screen = iota
	ScreenCreate
	ScreenSend
	ScreenBalance
	ScreenHelp
)

func (s Screen) String() string {
	switch s {
	case ScreenHome:
		return "home"
	case ScreenCreate:
		return "create"
	case ScreenSend:
		return "send"
	case ScreenBalance:
		return "balance"
	case ScreenHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Severity grades a state for observers. It never drives control flow.
type Severity int

const (
	// SeverityNone marks a state without anything worth logging.
	SeverityNone Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return ""
	}
}

// Level maps the severity onto a slog level. The second result is false for SeverityNone.
func (s Severity) Level() (slog.Level, bool) {
	switch s {
	case SeverityInfo:
		return slog.LevelInfo, true
	case SeverityWarn:
		return slog.LevelWarn, true
	case SeverityError:
		return slog.LevelError, true
	default:
		return 0, false
	}
}

// Wallet is the external collaborator performing the actual wallet operations.
// Implementations return a ready-to-display message on success.
type Wallet interface {
	Create(ctx context.Context) (string, error)
	Send(ctx context.Context, amount decimal.Decimal, destination *url.URL) (string, error)
	Balance(ctx context.Context) (string, error)
}

// ExternalContext carries what the wallet collaborator needs. The reducer
// threads it through untouched.
type ExternalContext struct {
	Wallet Wallet
}

// State is the whole bot state. Values are replaced, never mutated in place.
type State struct {
	Screen     Screen
	PrevScreen Screen

	// ConversationID is meaningful only when HasConversation is set, which
	// happens with the first processed update.
	ConversationID  int64
	HasConversation bool

	// Message is the reply body; empty means no message.
	Message  string
	Severity Severity

	Context ExternalContext
}

// NewState returns the initial state: home screen, no conversation yet.
func NewState(ctx ExternalContext) State {
	return State{
		Screen:     ScreenHome,
		PrevScreen: ScreenHome,
		Context:    ctx,
	}
}

// LoggableState is the projection of State that is safe to log.
type LoggableState struct {
	Screen          Screen
	PrevScreen      Screen
	ConversationID  int64
	HasConversation bool
	Message         string
}

// Loggable drops the external context from the state.
func (s State) Loggable() LoggableState {
	return LoggableState{
		Screen:          s.Screen,
		PrevScreen:      s.PrevScreen,
		ConversationID:  s.ConversationID,
		HasConversation: s.HasConversation,
		Message:         s.Message,
	}
}

// LogValue implements slog.LogValuer.
func (l LoggableState) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("screen", l.Screen.String()),
		slog.String("prev_screen", l.PrevScreen.String()),
	}
	if l.HasConversation {
		attrs = append(attrs, slog.Int64("conversation_id", l.ConversationID))
	}
	if l.Message != "" {
		attrs = append(attrs, slog.String("message", l.Message))
	}
	return slog.GroupValue(attrs...)
}

// Update is the canonical form of an inbound notification. Empty Sender or
// Text mean the transport did not provide one.
type Update struct {
	ConversationID int64
	Sender         string
	Text           string
}

// UnroutableConversation is the conversation id given to updates whose shape
// carries no usable conversation.
const UnroutableConversation int64 = -1

// OutgoingMessage is what a transport sends back after each update.
type OutgoingMessage struct {
	ConversationID int64
	// Text may contain the neutral markup subset understood by core/markup.
	Text          string
	QuickCommands []string
}

// EmptyReplyPrompt replaces empty reply bodies, which chat services reject.
const EmptyReplyPrompt = "What would you like to do?"

// Body returns Text, or EmptyReplyPrompt when Text is blank.
func (m OutgoingMessage) Body() string {
	if strings.TrimSpace(m.Text) == "" {
		return EmptyReplyPrompt
	}
	return m.Text
}
