package wallet

// OperationError is a wallet failure whose message is shown to the user as is.
type OperationError struct {
	Op      string
	Message string
}

func (e *OperationError) Error() string {
	return e.Message
}

// Is matches on operation and message, so the exported values work with errors.Is.
func (e *OperationError) Is(target error) bool {
	t, ok := target.(*OperationError)
	if !ok {
		return false
	}
	return t.Op == e.Op && t.Message == e.Message
}

var (
	// ErrWalletExists is returned by Create when wallet data is already present.
	ErrWalletExists = &OperationError{Op: opCreate, Message: "Wallet exists"}
	// ErrCreateWallet is returned when the wallet binary does not print a recovery phrase.
	ErrCreateWallet = &OperationError{Op: opCreate, Message: "Can't create wallet"}
	// ErrAPISecretMissing is returned when the owner API secret cannot be read.
	ErrAPISecretMissing = &OperationError{Op: opOwnerAPI, Message: ".api_secret file does not exist in wallet directory"}
	// ErrInvalidAmount is returned for amounts that round to zero nanogrin or less.
	ErrInvalidAmount = &OperationError{Op: opSend, Message: "Amount must be greater than zero"}
)

const (
	opCreate   = "create"
	opSend     = "send"
	opBalance  = "balance"
	opOwnerAPI = "owner_api"
)
