package engine

import (
	"context"
	"errors"
)

// Fixed notices.
const (
	NoIdentityNotice    = "You must have a username to use Grin Bot."
	WrongIdentityNotice = "Your username does not match the username in the Grin Bot config."
	UnsupportedNotice   = "For security reasons, inline and group messages are not supported."
)

// HelpText is the body of the help screen.
const HelpText = `**Grin Bot**

Operate your Grin wallet with the following commands:

/balance - show the wallet summary
/send _amount_ _url_ - send grin to a listening wallet, e.g.
` + "```\n/send 0.5 http://recipient.example.org:3415\n```" + `
/create - create a new wallet and show its recovery phrase
/home - go back to the start
/help - show this message`

var errNoWallet = errors.New("wallet is not configured")

// Reduce computes the next state. Only Create, Send and Balance reach the
// wallet; their failures end up in the message and are never retried.
func Reduce(ctx context.Context, s State, a Action) State {
	next := s
	next.ConversationID = a.Conversation()
	next.HasConversation = true

	switch act := a.(type) {
	case Home:
		next.Screen = ScreenHome
		next.PrevScreen = ScreenHome
		next.Message = ""
		next.Severity = SeverityNone
	case Create:
		next.Screen = ScreenCreate
		next.Message, next.Severity = walletResult(func() (string, error) {
			if s.Context.Wallet == nil {
				return "", errNoWallet
			}
			return s.Context.Wallet.Create(ctx)
		}, SeverityError)
	case Send:
		next.Screen = ScreenSend
		next.Message, next.Severity = walletResult(func() (string, error) {
			if s.Context.Wallet == nil {
				return "", errNoWallet
			}
			return s.Context.Wallet.Send(ctx, act.Amount, act.Destination)
		}, SeverityInfo)
	case Balance:
		next.Screen = ScreenBalance
		next.Message, next.Severity = walletResult(func() (string, error) {
			if s.Context.Wallet == nil {
				return "", errNoWallet
			}
			return s.Context.Wallet.Balance(ctx)
		}, SeverityInfo)
	case Help:
		next.Screen = ScreenHelp
		next.Message = HelpText
		next.Severity = SeverityNone
	case NoIdentity:
		next.Message = NoIdentityNotice
		next.Severity = SeverityWarn
	case WrongIdentity:
		next.Message = WrongIdentityNotice
		next.Severity = SeverityWarn
	case ModeNotSupported:
		next.Message = UnsupportedNotice
		next.Severity = SeverityWarn
	case Back:
		next.Screen = s.PrevScreen
		next.PrevScreen = ScreenHome
		next.Message = ""
		next.Severity = SeverityNone
	case CommandError:
		next.Message = "Error: " + act.Err.Error()
		next.Severity = SeverityError
	case Unknown:
		next.Message = ""
		next.Severity = SeverityError
	}
	return next
}

func walletResult(call func() (string, error), onFailure Severity) (string, Severity) {
	msg, err := call()
	if err != nil {
		return "Error: " + err.Error(), onFailure
	}
	return msg, SeverityNone
}
