package engine

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Command names understood by the parser.
const (
	CmdHome        = "/home"
	CmdCreate      = "/create"
	CmdSend        = "/send"
	CmdBalance     = "/balance"
	CmdHelp        = "/help"
	CmdStart       = "/start"
	CmdBack        = "/back"
	CmdUnsupported = "/unsupported"
)

// SendUsage is shown when /send gets the wrong number of arguments.
const SendUsage = "Wrong number of arguments.\n\nUsage:\n```\n/send 0.001 http://some-recipient123.org\n```"

// ParseErrorKind enumerates the ways a command can fail validation.
type ParseErrorKind int

const (
	WrongArgumentCount ParseErrorKind = iota + 1
	DestinationNotAUrl
	AmountNotANumber
)

// CommandParseError describes why a command was rejected.
type CommandParseError struct {
	Kind ParseErrorKind
	// Usage is set for WrongArgumentCount.
	Usage string
}

func (e *CommandParseError) Error() string {
	switch e.Kind {
	case WrongArgumentCount:
		return e.Usage
	case DestinationNotAUrl:
		return "destination is not a valid URL"
	case AmountNotANumber:
		return "amount is not a number"
	default:
		return "invalid command"
	}
}

// Is matches errors of the same kind, so errors.Is works against the exported sentinels.
func (e *CommandParseError) Is(target error) bool {
	t, ok := target.(*CommandParseError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrWrongArgumentCount = &CommandParseError{Kind: WrongArgumentCount, Usage: SendUsage}
	ErrDestinationNotAUrl = &CommandParseError{Kind: DestinationNotAUrl}
	ErrAmountNotANumber   = &CommandParseError{Kind: AmountNotANumber}
)

// ParsedSendCommand is a validated /send.
type ParsedSendCommand struct {
	Amount      float64
	Destination *url.URL
}

// Tokenize splits raw text on single spaces. The first token is the
// command, the rest are positional arguments. Consecutive spaces yield
// empty arguments; there is no quoting.
func Tokenize(raw string) (string, []string) {
	tokens := strings.Split(raw, " ")
	return tokens[0], tokens[1:]
}

// ParseSendCommand validates /send arguments in a fixed order: count,
// destination, amount.
func ParseSendCommand(args []string) (ParsedSendCommand, error) {
	if len(args) != 2 {
		return ParsedSendCommand{}, &CommandParseError{Kind: WrongArgumentCount, Usage: SendUsage}
	}
	dest, err := parseDestination(args[1])
	if err != nil {
		return ParsedSendCommand{}, err
	}
	amount, err := parseAmount(args[0])
	if err != nil {
		return ParsedSendCommand{}, err
	}
	return ParsedSendCommand{Amount: amount, Destination: dest}, nil
}

func parseDestination(tok string) (*url.URL, error) {
	u, err := url.Parse(tok)
	if err != nil || u.Scheme == "" {
		return nil, &CommandParseError{Kind: DestinationNotAUrl}
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if u.Host == "" {
			return nil, &CommandParseError{Kind: DestinationNotAUrl}
		}
	}
	return u, nil
}

func parseAmount(tok string) (float64, error) {
	digits := strings.TrimLeft(tok, "+-")
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") || strings.Contains(tok, "_") {
		return 0, &CommandParseError{Kind: AmountNotANumber}
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &CommandParseError{Kind: AmountNotANumber}
	}
	return f, nil
}

// ParseCommand maps a command name and its arguments to an Action.
// Validation failures become CommandError rather than errors.
func ParseCommand(name string, args []string, conversationID int64) Action {
	switch name {
	case CmdHome:
		return Home{ConversationID: conversationID}
	case CmdCreate:
		return Create{ConversationID: conversationID}
	case CmdSend:
		cmd, err := ParseSendCommand(args)
		if err != nil {
			return CommandError{ConversationID: conversationID, Err: err.(*CommandParseError)}
		}
		return Send{
			ConversationID: conversationID,
			Amount:         decimal.NewFromFloat(cmd.Amount),
			Destination:    cmd.Destination,
		}
	case CmdBalance:
		return Balance{ConversationID: conversationID}
	case CmdHelp, CmdStart:
		return Help{ConversationID: conversationID}
	case CmdBack:
		return Back{ConversationID: conversationID}
	case CmdUnsupported:
		return ModeNotSupported{ConversationID: conversationID}
	default:
		return Unknown{ConversationID: conversationID}
	}
}

// CheckIdentity is the authorization boundary: it returns a rejecting action
// for anyone but the configured user, and nil for the configured user.
func CheckIdentity(conversationID int64, sender, configured string) Action {
	if sender == "" {
		return NoIdentity{ConversationID: conversationID}
	}
	if sender != configured {
		return WrongIdentity{ConversationID: conversationID}
	}
	return nil
}

// ActionFor runs guard, tokenizer and parser over a canonical update.
// Updates without text are Unknown regardless of sender.
func ActionFor(u Update, configured string) Action {
	if u.Text == "" {
		return Unknown{ConversationID: u.ConversationID}
	}
	if rejected := CheckIdentity(u.ConversationID, u.Sender, configured); rejected != nil {
		return rejected
	}
	name, args := Tokenize(u.Text)
	return ParseCommand(name, args, u.ConversationID)
}
