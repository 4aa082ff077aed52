package qtm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/qtmctl/internal/protocol"
)

// Banner is the greeting QTM sends once after accepting a connection.
const Banner = "QTM RT Interface connected"

var (
	ErrTimeout         = errors.New("qtm: timed out waiting for reply")
	ErrVersionRejected = errors.New("qtm: protocol version rejected")
)

// Session drives the QTM-RT command/reply envelope over one transport.
// One mutex serializes every exchange: a command holds it from send until
// its reply arrives, a stream holds it from StreamFrames until Close.
// Events that arrive while a reply is pending are discarded; QTM emits
// them freely between replies.
//
// A session does not own reconnection. After ErrTimeout or a transport
// failure the owner closes the channel and builds a fresh session.
type Session struct {
	tr  Transport
	cfg Config
	mu  sync.Mutex
}

// NewSession wraps an established transport.
func NewSession(tr Transport, cfg Config) *Session {
	return &Session{tr: tr, cfg: cfg.WithDefaults()}
}

// WaitForBanner consumes the server greeting. It reports false when the
// greeting does not arrive within BannerTimeout or is anything but the
// exact command-typed banner line.
func (s *Session) WaitForBanner(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.BannerTimeout)
	defer cancel()
	msg, err := s.tr.Receive(ctx)
	if err != nil {
		return false
	}
	return msg.IsCommand() && string(msg.Body) == Banner
}

// SendCommand transmits one command and returns the first non-event reply.
// Error-typed replies surface as *protocol.ServerError. The wait is bounded
// by CommandTimeout and by ctx, whichever ends first; an earlier ctx
// deadline acts as a per-call timeout override.
func (s *Session) SendCommand(ctx context.Context, name string, args ...string) (protocol.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exchange(ctx, protocol.NewCommand(name, args...))
}

// SwitchToVersion negotiates the protocol dialect. The server must echo the
// exact confirmation line; anything else rejects the switch.
func (s *Session) SwitchToVersion(ctx context.Context, version string) error {
	reply, err := s.SendCommand(ctx, "Version", version)
	if err != nil {
		return err
	}
	if !reply.IsCommand() || string(reply.Body) != "Version set to "+version {
		return fmt.Errorf("%w: %q", ErrVersionRejected, reply.Body)
	}
	return nil
}

func (s *Session) noteEvent(code protocol.Event) {
	if s.cfg.OnEvent != nil {
		s.cfg.OnEvent(code)
	}
}

// exchange runs one send/await round trip. Callers hold s.mu.
func (s *Session) exchange(ctx context.Context, cmd protocol.Message) (protocol.Message, error) {
	if err := s.tr.Send(cmd); err != nil {
		return protocol.Message{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CommandTimeout)
	defer cancel()
	for {
		reply, err := s.tr.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return protocol.Message{}, fmt.Errorf("%w: %s", ErrTimeout, cmd.Body)
			}
			return protocol.Message{}, err
		}
		if reply.Type == protocol.PacketEvent {
			if code, ok := reply.EventCode(); ok {
				s.noteEvent(code)
			}
			continue
		}
		if err := reply.CheckError(); err != nil {
			return protocol.Message{}, err
		}
		return reply, nil
	}
}
