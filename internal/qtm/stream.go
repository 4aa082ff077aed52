package qtm

import (
	"context"

	"github.com/danmuck/qtmctl/internal/protocol"
)

// StreamFrames starts a frame stream with the given arguments (rate
// selector, component list, and so on, passed through verbatim). The
// session guard is held for the whole stream lifetime, so no other
// command can interleave until Close. The server's first reply seeds the
// stream; with some rate selectors that reply is already the first data
// packet rather than an acknowledgement.
func (s *Session) StreamFrames(ctx context.Context, args ...string) (*Stream, error) {
	s.mu.Lock()
	reply, err := s.exchange(ctx, protocol.NewCommand("StreamFrames", args...))
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	return &Stream{s: s, pending: &reply}, nil
}

// Stream is a live frame subscription. Next/Body/Err follow the scanner
// shape; Close must always be called, even after Next returns false.
type Stream struct {
	s       *Session
	pending *protocol.Message
	body    []byte
	err     error

	serverStopped bool
	closed        bool
}

// Next blocks until the next data packet. It returns false when the
// server ends the stream, the context is done, or the transport fails;
// Err distinguishes failure from a natural end.
func (st *Stream) Next(ctx context.Context) bool {
	if st.closed || st.err != nil || st.serverStopped {
		return false
	}
	for {
		var msg protocol.Message
		if st.pending != nil {
			msg = *st.pending
			st.pending = nil
		} else {
			var err error
			msg, err = st.s.tr.Receive(ctx)
			if err != nil {
				st.err = err
				return false
			}
		}
		switch msg.Type {
		case protocol.PacketData:
			st.body = msg.Body
			return true
		case protocol.PacketEvent:
			code, ok := msg.EventCode()
			if !ok {
				continue
			}
			st.s.noteEvent(code)
			if code == protocol.EventRTFromFileStopped {
				st.serverStopped = true
				return false
			}
			st.s.cfg.Logger.Debug().Stringer("event", code).Msg("stream event skipped")
		default:
			st.s.cfg.Logger.Debug().
				Stringer("packet_type", msg.Type).
				Int("bytes", len(msg.Body)).
				Msg("unexpected message during stream skipped")
		}
	}
}

// Body returns the current data packet body. The slice is valid until the
// next call to Next.
func (st *Stream) Body() []byte {
	return st.body
}

// Err returns the error that ended the stream, or nil after a natural end.
func (st *Stream) Err() error {
	return st.err
}

// Close stops the stream and releases the session guard. When the server
// already ended the stream no stop command is sent. The stop exchange runs
// on a background context so cleanup still reaches the server after the
// caller's context is cancelled. Close is idempotent.
func (st *Stream) Close() error {
	if st.closed {
		return nil
	}
	st.closed = true
	defer st.s.mu.Unlock()
	if st.serverStopped {
		return nil
	}
	// The reply to Stop may be a data packet already in flight rather
	// than an acknowledgement; either clears the pipe.
	_, err := st.s.exchange(context.Background(), protocol.NewCommand("StreamFrames", "Stop"))
	return err
}
