package chain

import "fmt"

// RemoteCallError reports a failed read, write or confirmation against the
// node or contract, including reverts, insufficient funds and rejected
// signatures.
type RemoteCallError struct {
	Method string
	Err    error
}

func (e *RemoteCallError) Error() string {
	return fmt.Sprintf("remote call %s: %v", e.Method, e.Err)
}

func (e *RemoteCallError) Unwrap() error {
	return e.Err
}
