package protocol

import "strings"

// Message is one complete QTM-RT packet: the decoded type tag plus the body
// bytes that follow the 8-byte header. The zero value is an empty error packet.
type Message struct {
	Type PacketType
	Body []byte
}

// NewCommand builds an outbound command packet. The command name and its
// arguments are joined with single spaces, exactly as the server tokenizes.
func NewCommand(name string, args ...string) Message {
	if len(args) == 0 {
		return Message{Type: PacketCommand, Body: []byte(name)}
	}
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	parts = append(parts, args...)
	return Message{Type: PacketCommand, Body: []byte(strings.Join(parts, " "))}
}

// FromWire constructs an inbound message from a raw header tag and body.
// Command, XML and data bodies arrive NUL-terminated from QTM; exactly one
// trailing NUL is stripped when present. All other types keep the body verbatim.
func FromWire(tag uint32, body []byte) (Message, error) {
	t, err := ParsePacketType(tag)
	if err != nil {
		return Message{}, err
	}
	switch t {
	case PacketCommand, PacketXML, PacketData:
		if n := len(body); n > 0 && body[n-1] == 0 {
			body = body[:n-1]
		}
	}
	return Message{Type: t, Body: body}, nil
}

func (m Message) IsCommand() bool {
	return m.Type == PacketCommand
}

func (m Message) IsError() bool {
	return m.Type == PacketError
}

// EventCode returns the state code of an event packet. The second return is
// false for non-event packets and for event packets with an empty body.
func (m Message) EventCode() (Event, bool) {
	if m.Type != PacketEvent || len(m.Body) == 0 {
		return 0, false
	}
	return Event(m.Body[0]), true
}

// CheckError returns a *ServerError for error-typed packets and nil otherwise.
func (m Message) CheckError() error {
	if m.Type != PacketError {
		return nil
	}
	return &ServerError{Text: string(m.Body)}
}
