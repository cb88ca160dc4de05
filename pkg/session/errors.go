package session

import "fmt"

// Stage identifies which step of the connect sequence failed.
type Stage string

const (
	// StageTicket is the credential-for-ticket exchange.
	StageTicket Stage = "ticket"
	// StageSocket is the websocket open.
	StageSocket Stage = "socket"
)

// ConnectionError is returned by Connect when the connect sequence fails.
// The session remains disconnected and the caller may retry.
type ConnectionError struct {
	Stage Stage
	Err   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect failed at %s stage: %v", e.Stage, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
