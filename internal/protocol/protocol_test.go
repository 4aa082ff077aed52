package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestNewCommandJoinsArguments(t *testing.T) {
	msg := NewCommand("StreamFrames", "AllFrames", "6D")
	if msg.Type != PacketCommand {
		t.Fatalf("expected command type, got %v", msg.Type)
	}
	if string(msg.Body) != "StreamFrames AllFrames 6D" {
		t.Fatalf("unexpected body: %q", msg.Body)
	}
}

func TestNewCommandWithoutArguments(t *testing.T) {
	msg := NewCommand("GetState")
	if string(msg.Body) != "GetState" {
		t.Fatalf("unexpected body: %q", msg.Body)
	}
}

func TestFromWireStripsOneTrailingNul(t *testing.T) {
	cases := []struct {
		name string
		tag  uint32
		body []byte
		want []byte
	}{
		{"command", uint32(PacketCommand), []byte("Version set to 1.23\x00"), []byte("Version set to 1.23")},
		{"xml", uint32(PacketXML), []byte("<QTM_Parameters/>\x00"), []byte("<QTM_Parameters/>")},
		{"data", uint32(PacketData), []byte{0x01, 0x02, 0x00}, []byte{0x01, 0x02}},
		{"only one nul removed", uint32(PacketCommand), []byte("ok\x00\x00"), []byte("ok\x00")},
		{"no nul to strip", uint32(PacketCommand), []byte("ok"), []byte("ok")},
		{"error kept verbatim", uint32(PacketError), []byte("boom\x00"), []byte("boom\x00")},
		{"event kept verbatim", uint32(PacketEvent), []byte{0x09, 0x00}, []byte{0x09, 0x00}},
		{"empty body", uint32(PacketData), nil, nil},
	}
	for _, tc := range cases {
		msg, err := FromWire(tc.tag, tc.body)
		if err != nil {
			t.Fatalf("%s: from wire: %v", tc.name, err)
		}
		if !bytes.Equal(msg.Body, tc.want) {
			t.Fatalf("%s: body mismatch: got %q want %q", tc.name, msg.Body, tc.want)
		}
	}
}

func TestFromWireUnknownTag(t *testing.T) {
	for _, tag := range []uint32{9, 42, 0xffffffff} {
		_, err := FromWire(tag, nil)
		if !errors.Is(err, ErrUnknownPacketType) {
			t.Fatalf("tag %d: expected ErrUnknownPacketType, got %v", tag, err)
		}
	}
}

func TestEventCode(t *testing.T) {
	msg := Message{Type: PacketEvent, Body: []byte{byte(EventCaptureStarted)}}
	code, ok := msg.EventCode()
	if !ok || code != EventCaptureStarted {
		t.Fatalf("expected capture_started, got %v ok=%v", code, ok)
	}

	if _, ok := (Message{Type: PacketEvent}).EventCode(); ok {
		t.Fatalf("empty event body must not yield a code")
	}
	if _, ok := (Message{Type: PacketData, Body: []byte{1}}).EventCode(); ok {
		t.Fatalf("non-event packet must not yield a code")
	}
}

func TestCheckError(t *testing.T) {
	err := Message{Type: PacketError, Body: []byte("Invalid command")}.CheckError()
	if err == nil {
		t.Fatalf("expected error")
	}
	var srvErr *ServerError
	if !errors.As(err, &srvErr) {
		t.Fatalf("expected ServerError, got %v", err)
	}
	if srvErr.Text != "Invalid command" {
		t.Fatalf("unexpected server text: %q", srvErr.Text)
	}

	if err := (Message{Type: PacketCommand, Body: []byte("ok")}).CheckError(); err != nil {
		t.Fatalf("non-error packet produced error: %v", err)
	}
}

func TestEnumStrings(t *testing.T) {
	if PacketData.String() != "data" {
		t.Fatalf("unexpected packet string: %s", PacketData)
	}
	if PacketType(77).String() != "packet_type(77)" {
		t.Fatalf("unexpected fallback string: %s", PacketType(77))
	}
	if EventRTFromFileStopped.String() != "rt_from_file_stopped" {
		t.Fatalf("unexpected event string: %s", EventRTFromFileStopped)
	}
	if Event(200).String() != "event(200)" {
		t.Fatalf("unexpected fallback string: %s", Event(200))
	}
}
