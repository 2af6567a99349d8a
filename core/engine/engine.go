package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrMalformedNotification is returned by normalizers when a notification
// lacks required fields.
var ErrMalformedNotification = errors.New("malformed notification")

// Normalizer converts one transport's notification type into the canonical update.
type Normalizer[N any] interface {
	Normalize(n N) (Update, error)
}

// NormalizerFunc adapts a function to the Normalizer interface.
type NormalizerFunc[N any] func(n N) (Update, error)

// Normalize calls f.
func (f NormalizerFunc[N]) Normalize(n N) (Update, error) {
	return f(n)
}

// Canonical normalizes n and routes failures to an unroutable, textless
// update, which the parser turns into Unknown.
func Canonical[N any](nz Normalizer[N], n N) (Update, error) {
	u, err := nz.Normalize(n)
	if err != nil {
		return Update{ConversationID: UnroutableConversation}, err
	}
	return u, nil
}

// QuickCommands are offered with every reply.
var QuickCommands = []string{CmdBalance, CmdHelp}

// Render maps a state to the reply for its conversation.
func Render(s State) OutgoingMessage {
	return OutgoingMessage{
		ConversationID: s.ConversationID,
		Text:           s.Message,
		QuickCommands:  append([]string(nil), QuickCommands...),
	}
}

// Observer is called synchronously with every new state.
type Observer func(ctx context.Context, a Action, s State)

// Options configure an Engine.
type Options struct {
	// Identity is the only sender allowed to operate the wallet.
	Identity  string
	Context   ExternalContext
	Observers []Observer
}

// Engine owns the single State and runs one pipeline pass at a time.
type Engine struct {
	mu        sync.Mutex
	state     State
	identity  string
	observers []Observer
}

// New creates an engine in the initial state.
func New(opts Options) *Engine {
	return &Engine{
		state:     NewState(opts.Context),
		identity:  opts.Identity,
		observers: append([]Observer(nil), opts.Observers...),
	}
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Handle runs guard, parser, reducer and renderer for one canonical update.
func (e *Engine) Handle(ctx context.Context, u Update) OutgoingMessage {
	return e.Dispatch(ctx, ActionFor(u, e.identity))
}

// Command runs a locally supplied command string without an identity check.
// It is the one-shot CLI path.
func (e *Engine) Command(ctx context.Context, raw string, conversationID int64) OutgoingMessage {
	name, args := Tokenize(raw)
	return e.Dispatch(ctx, ParseCommand(name, args, conversationID))
}

// Dispatch reduces the action, notifies observers, and renders the reply.
func (e *Engine) Dispatch(ctx context.Context, a Action) OutgoingMessage {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := Reduce(ctx, e.state, a)
	e.state = next
	for _, obs := range e.observers {
		if obs != nil {
			obs(ctx, a, next)
		}
	}
	return Render(next)
}

// LogObserver logs every state carrying a severity, at the matching level.
func LogObserver(log *slog.Logger) Observer {
	return func(ctx context.Context, a Action, s State) {
		level, ok := s.Severity.Level()
		if !ok {
			return
		}
		l := log
		if l == nil {
			l = slog.Default()
		}
		l.LogAttrs(ctx, level, "state.reduced",
			slog.String("event", "state.reduced"),
			slog.String("action", a.Name()),
			slog.String("severity", s.Severity.String()),
			slog.Any("state", s.Loggable()),
		)
	}
}
