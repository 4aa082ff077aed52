package qtm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/danmuck/qtmctl/internal/protocol"
	"github.com/danmuck/qtmctl/internal/protocol/frame"
)

const (
	readBufSize    = 32 * 1024
	receiveBacklog = 16
)

var (
	ErrChannelClosed = errors.New("qtm: channel closed")
)

// Transport is the duplex message boundary the session drives: send one
// message, receive the next decoded message in arrival order.
type Transport interface {
	Send(msg protocol.Message) error
	Receive(ctx context.Context) (protocol.Message, error)
}

// Channel adapts a byte stream, typically a net.Conn dialed by the owner,
// to the Transport boundary. A background goroutine owns the read side and
// keeps the frame decoder fed regardless of what the session is doing.
// Writes are serialized; one Send is one Write.
type Channel struct {
	conn io.ReadWriteCloser

	writeMu sync.Mutex

	msgs chan protocol.Message

	errMu   sync.Mutex
	readErr error

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

var _ Transport = (*Channel)(nil)

// NewChannel wraps conn and starts the read pump.
func NewChannel(conn io.ReadWriteCloser) *Channel {
	c := &Channel{
		conn: conn,
		msgs: make(chan protocol.Message, receiveBacklog),
		done: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Channel) readLoop() {
	defer close(c.msgs)
	var dec frame.Decoder
	buf := make([]byte, readBufSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			msgs, decErr := dec.Feed(buf[:n])
			for _, msg := range msgs {
				select {
				case c.msgs <- msg:
				case <-c.done:
					return
				}
			}
			if decErr != nil {
				c.setReadErr(decErr)
				return
			}
		}
		if err != nil {
			c.setReadErr(err)
			return
		}
	}
}

func (c *Channel) setReadErr(err error) {
	c.errMu.Lock()
	if c.readErr == nil {
		c.readErr = err
	}
	c.errMu.Unlock()
}

// takeReadErr reports why the pump stopped. Messages decoded before the
// failure drain first; the error only shows once the backlog is empty.
func (c *Channel) takeReadErr() error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.readErr != nil {
		return fmt.Errorf("qtm: receive: %w", c.readErr)
	}
	return ErrChannelClosed
}

// Send encodes and writes one message.
func (c *Channel) Send(msg protocol.Message) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(frame.Encode(msg)); err != nil {
		return fmt.Errorf("qtm: send: %w", err)
	}
	return nil
}

// Receive returns the next decoded message, waiting until one arrives, ctx
// ends, or the pump has stopped and the backlog is drained.
func (c *Channel) Receive(ctx context.Context) (protocol.Message, error) {
	select {
	case msg, ok := <-c.msgs:
		if !ok {
			return protocol.Message{}, c.takeReadErr()
		}
		return msg, nil
	case <-ctx.Done():
		return protocol.Message{}, ctx.Err()
	}
}

// Close stops the pump and closes the underlying stream. Safe to call more
// than once and from any goroutine.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
