package frame

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/danmuck/qtmctl/internal/protocol"
)

// HeaderSize is the fixed QTM-RT header: little-endian uint32 total length
// (header included) followed by little-endian uint32 packet type.
const HeaderSize = 8

var (
	ErrInvalidLength = errors.New("frame: declared length below header size")
)

// Encode returns the wire bytes for one message: 8-byte header then body.
func Encode(m protocol.Message) []byte {
	buf := make([]byte, HeaderSize+len(m.Body))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(HeaderSize+len(m.Body)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(m.Type))
	copy(buf[HeaderSize:], m.Body)
	return buf
}

// Decoder reassembles messages from an arbitrarily fragmented byte stream.
// Chunks may carry partial headers, partial bodies, or several messages at
// once; completed messages come back in wire order. The zero value is ready
// to use. The first framing violation poisons the decoder: it is returned
// together with any messages completed earlier in the same chunk, and again
// from every later Feed.
type Decoder struct {
	header    [HeaderSize]byte
	headerLen int
	inBody    bool
	tag       uint32
	body      []byte
	bodyNeed  int
	err       error
}

// Feed consumes one chunk and returns every message it completes. It never
// blocks and never retains chunk memory across calls.
func (d *Decoder) Feed(chunk []byte) ([]protocol.Message, error) {
	if d.err != nil {
		return nil, d.err
	}
	var out []protocol.Message
	for len(chunk) > 0 {
		if !d.inBody {
			n := copy(d.header[d.headerLen:], chunk)
			d.headerLen += n
			chunk = chunk[n:]
			if d.headerLen < HeaderSize {
				break
			}
			total := binary.LittleEndian.Uint32(d.header[0:4])
			tag := binary.LittleEndian.Uint32(d.header[4:8])
			if total < HeaderSize {
				d.err = fmt.Errorf("%w: %d", ErrInvalidLength, total)
				return out, d.err
			}
			if _, err := protocol.ParsePacketType(tag); err != nil {
				d.err = err
				return out, d.err
			}
			if total == HeaderSize {
				msg, err := protocol.FromWire(tag, nil)
				if err != nil {
					d.err = err
					return out, d.err
				}
				out = append(out, msg)
				d.reset()
				continue
			}
			d.tag = tag
			d.bodyNeed = int(total) - HeaderSize
			d.inBody = true
			continue
		}

		take := len(chunk)
		if take > d.bodyNeed {
			take = d.bodyNeed
		}
		// Grown by append so a hostile declared length cannot reserve
		// memory ahead of bytes that actually arrive.
		d.body = append(d.body, chunk[:take]...)
		d.bodyNeed -= take
		chunk = chunk[take:]
		if d.bodyNeed > 0 {
			break
		}
		msg, err := protocol.FromWire(d.tag, d.body)
		if err != nil {
			d.err = err
			return out, d.err
		}
		out = append(out, msg)
		d.reset()
	}
	return out, nil
}

func (d *Decoder) reset() {
	d.headerLen = 0
	d.inBody = false
	d.tag = 0
	d.body = nil
	d.bodyNeed = 0
}
