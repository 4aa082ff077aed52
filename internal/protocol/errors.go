package protocol

import "errors"

var (
	ErrUnknownPacketType = errors.New("protocol: unknown packet type")
)

// ServerError carries the text of an error-typed reply from QTM.
type ServerError struct {
	Text string
}

func (e *ServerError) Error() string {
	return "protocol: server error: " + e.Text
}
