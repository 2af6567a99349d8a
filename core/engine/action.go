package engine

import (
	"net/url"

	"github.com/shopspring/decimal"
)

// Action is a typed request to transition the state. The set of
// implementations is closed.
type Action interface {
	Conversation() int64
	Name() string
	isAction()
}

// Home returns to the home screen.
type Home struct{ ConversationID int64 }

// Create asks the wallet to create a new wallet.
type Create struct{ ConversationID int64 }

// Send transfers Amount grin to Destination.
type Send struct {
	ConversationID int64
	Amount         decimal.Decimal
	Destination    *url.URL
}

// Balance asks the wallet for its summary.
type Balance struct{ ConversationID int64 }

// Help shows the help screen.
type Help struct{ ConversationID int64 }

// NoIdentity is produced when the sender has no username.
type NoIdentity struct{ ConversationID int64 }

// WrongIdentity is produced when the sender is not the configured user.
type WrongIdentity struct{ ConversationID int64 }

// ModeNotSupported is produced for inline, group and channel traffic.
type ModeNotSupported struct{ ConversationID int64 }

// Back returns to the previous screen.
type Back struct{ ConversationID int64 }

// CommandError carries a command that failed validation.
type CommandError struct {
	ConversationID int64
	Err            *CommandParseError
}

// Unknown is anything the parser could not map.
type Unknown struct{ ConversationID int64 }

func (a Home) Conversation() int64             { return a.ConversationID }
func (a Create) Conversation() int64           { return a.ConversationID }
func (a Send) Conversation() int64             { return a.ConversationID }
func (a Balance) Conversation() int64          { return a.ConversationID }
func (a Help) Conversation() int64             { return a.ConversationID }
func (a NoIdentity) Conversation() int64       { return a.ConversationID }
func (a WrongIdentity) Conversation() int64    { return a.ConversationID }
func (a ModeNotSupported) Conversation() int64 { return a.ConversationID }
func (a Back) Conversation() int64             { return a.ConversationID }
func (a CommandError) Conversation() int64     { return a.ConversationID }
func (a Unknown) Conversation() int64          { return a.ConversationID }

func (Home) Name() string             { return "home" }
func (Create) Name() string           { return "create" }
func (Send) Name() string             { return "send" }
func (Balance) Name() string          { return "balance" }
func (Help) Name() string             { return "help" }
func (NoIdentity) Name() string       { return "no_identity" }
func (WrongIdentity) Name() string    { return "wrong_identity" }
func (ModeNotSupported) Name() string { return "mode_not_supported" }
func (Back) Name() string             { return "back" }
func (CommandError) Name() string     { return "command_error" }
func (Unknown) Name() string          { return "unknown" }

func (Home) isAction()             {}
func (Create) isAction()           {}
func (Send) isAction()             {}
func (Balance) isAction()          {}
func (Help) isAction()             {}
func (NoIdentity) isAction()       {}
func (WrongIdentity) isAction()    {}
func (ModeNotSupported) isAction() {}
func (Back) isAction()             {}
func (CommandError) isAction()     {}
func (Unknown) isAction()          {}

// UsesWallet reports whether reducing the action calls the wallet collaborator.
func UsesWallet(a Action) bool {
	switch a.(type) {
	case Create, Send, Balance:
		return true
	}
	return false
}
