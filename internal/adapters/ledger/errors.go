package ledger

import (
	"errors"
	"fmt"
)

// Sentinel kinds for ledger errors. None of them reach callers of the public
// service operations; they are logged and turned into "no receipt".
var (
	ErrNoCredential      = errors.New("no signing credential")
	ErrInsufficientFunds = errors.New("payer balance is zero")
	ErrNoSignature       = errors.New("no signature in tool output")
	ErrInvalidAddress    = errors.New("invalid address")
	ErrInvalidKeypair    = errors.New("invalid keypair file")
	ErrNoPDA             = errors.New("could not find a viable program address")
	ErrNoEndpoint        = errors.New("no rpc endpoint configured")
	ErrUnavailable       = errors.New("all rpc endpoints failed")
	ErrMemoTooLong       = errors.New("memo exceeds transaction size")
)

// RPCError is the error object of a JSON-RPC 2.0 response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}
