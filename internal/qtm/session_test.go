package qtm

import (
	"context"
	"errors"
	"io"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/qtmctl/internal/protocol"
	"github.com/danmuck/qtmctl/internal/testutil/testlog"
)

// fakeTransport scripts the server side of a session: replies are consumed
// in FIFO order, sends are recorded for inspection.
type fakeTransport struct {
	mu      sync.Mutex
	sent    []protocol.Message
	recvErr error

	replies chan protocol.Message
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{replies: make(chan protocol.Message, 32)}
}

func (f *fakeTransport) Send(msg protocol.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) Receive(ctx context.Context) (protocol.Message, error) {
	f.mu.Lock()
	err := f.recvErr
	f.mu.Unlock()
	if err != nil {
		return protocol.Message{}, err
	}
	select {
	case msg := <-f.replies:
		return msg, nil
	case <-ctx.Done():
		return protocol.Message{}, ctx.Err()
	}
}

func (f *fakeTransport) queue(msgs ...protocol.Message) {
	for _, msg := range msgs {
		f.replies <- msg
	}
}

func (f *fakeTransport) failReceives(err error) {
	f.mu.Lock()
	f.recvErr = err
	f.mu.Unlock()
}

func (f *fakeTransport) sentBodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, msg := range f.sent {
		out[i] = string(msg.Body)
	}
	return out
}

func commandMsg(body string) protocol.Message {
	return protocol.Message{Type: protocol.PacketCommand, Body: []byte(body)}
}

func dataMsg(body string) protocol.Message {
	return protocol.Message{Type: protocol.PacketData, Body: []byte(body)}
}

func eventMsg(code protocol.Event) protocol.Message {
	return protocol.Message{Type: protocol.PacketEvent, Body: []byte{byte(code)}}
}

func newTestSession(t *testing.T) (*Session, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	s := NewSession(tr, Config{
		CommandTimeout: 100 * time.Millisecond,
		BannerTimeout:  50 * time.Millisecond,
		Logger:         testlog.Start(t),
	})
	return s, tr
}

func TestWaitForBannerAcceptsGreeting(t *testing.T) {
	s, tr := newTestSession(t)
	tr.queue(commandMsg(Banner))
	if !s.WaitForBanner(context.Background()) {
		t.Fatal("banner rejected")
	}
}

func TestWaitForBannerRejects(t *testing.T) {
	cases := []struct {
		name string
		msg  protocol.Message
	}{
		{"wrong text", commandMsg("hello there")},
		{"wrong type", dataMsg(Banner)},
		{"event", eventMsg(protocol.EventConnected)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, tr := newTestSession(t)
			tr.queue(tc.msg)
			if s.WaitForBanner(context.Background()) {
				t.Fatal("banner accepted")
			}
		})
	}
}

func TestWaitForBannerTimesOut(t *testing.T) {
	s, _ := newTestSession(t)
	start := time.Now()
	if s.WaitForBanner(context.Background()) {
		t.Fatal("banner accepted with silent server")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("banner wait took %v", elapsed)
	}
}

func TestSendCommandSkipsInterleavedEvents(t *testing.T) {
	s, tr := newTestSession(t)
	tr.queue(
		eventMsg(protocol.EventCaptureStarted),
		eventMsg(protocol.EventTrigger),
		commandMsg("Capture is running"),
	)
	reply, err := s.SendCommand(context.Background(), "GetState")
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if string(reply.Body) != "Capture is running" {
		t.Fatalf("reply = %q", reply.Body)
	}
	if got := tr.sentBodies(); !reflect.DeepEqual(got, []string{"GetState"}) {
		t.Fatalf("sent = %q", got)
	}
}

func TestSendCommandSurfacesServerError(t *testing.T) {
	s, tr := newTestSession(t)
	tr.queue(protocol.Message{Type: protocol.PacketError, Body: []byte("Command not supported")})
	_, err := s.SendCommand(context.Background(), "Bogus")
	var srvErr *protocol.ServerError
	if !errors.As(err, &srvErr) {
		t.Fatalf("err = %v, want *protocol.ServerError", err)
	}
	if srvErr.Text != "Command not supported" {
		t.Fatalf("server error text = %q", srvErr.Text)
	}
}

func TestSendCommandTimesOut(t *testing.T) {
	s, _ := newTestSession(t)
	_, err := s.SendCommand(context.Background(), "GetState")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestSendCommandCancellationIsNotTimeout(t *testing.T) {
	s, _ := newTestSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.SendCommand(ctx, "GetState")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Fatalf("cancellation reported as timeout: %v", err)
	}
}

func TestSwitchToVersion(t *testing.T) {
	s, tr := newTestSession(t)
	tr.queue(commandMsg("Version set to 1.25"))
	if err := s.SwitchToVersion(context.Background(), "1.25"); err != nil {
		t.Fatalf("SwitchToVersion: %v", err)
	}
	if got := tr.sentBodies(); !reflect.DeepEqual(got, []string{"Version 1.25"}) {
		t.Fatalf("sent = %q", got)
	}
}

func TestSwitchToVersionRejected(t *testing.T) {
	s, tr := newTestSession(t)
	tr.queue(commandMsg("Version NOT supported"))
	err := s.SwitchToVersion(context.Background(), "99.0")
	if !errors.Is(err, ErrVersionRejected) {
		t.Fatalf("err = %v, want ErrVersionRejected", err)
	}
}

func TestStreamDeliversDataUntilServerStop(t *testing.T) {
	s, tr := newTestSession(t)
	tr.queue(
		dataMsg("frame-1"),
		dataMsg("frame-2"),
		eventMsg(protocol.EventRTFromFileStopped),
	)

	st, err := s.StreamFrames(context.Background(), "Frequency:10", "6D")
	if err != nil {
		t.Fatalf("StreamFrames: %v", err)
	}
	var got []string
	for st.Next(context.Background()) {
		got = append(got, string(st.Body()))
	}
	if st.Err() != nil {
		t.Fatalf("stream error: %v", st.Err())
	}
	if !reflect.DeepEqual(got, []string{"frame-1", "frame-2"}) {
		t.Fatalf("bodies = %q", got)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Server already ended the stream, so no stop command goes out.
	if got := tr.sentBodies(); !reflect.DeepEqual(got, []string{"StreamFrames Frequency:10 6D"}) {
		t.Fatalf("sent = %q", got)
	}
}

func TestStreamSkipsAcknowledgementAndInterleavedMessages(t *testing.T) {
	s, tr := newTestSession(t)
	tr.queue(
		commandMsg("Ok"),
		dataMsg("frame-1"),
		eventMsg(protocol.EventCameraSettingsChanged),
		protocol.Message{Type: protocol.PacketXML, Body: []byte("<QTM_Settings/>")},
		dataMsg("frame-2"),
		eventMsg(protocol.EventRTFromFileStopped),
	)

	st, err := s.StreamFrames(context.Background(), "AllFrames", "6DEuler")
	if err != nil {
		t.Fatalf("StreamFrames: %v", err)
	}
	defer st.Close()
	var got []string
	for st.Next(context.Background()) {
		got = append(got, string(st.Body()))
	}
	if st.Err() != nil {
		t.Fatalf("stream error: %v", st.Err())
	}
	if !reflect.DeepEqual(got, []string{"frame-1", "frame-2"}) {
		t.Fatalf("bodies = %q", got)
	}
}

func TestStreamEarlyCloseSendsStop(t *testing.T) {
	s, tr := newTestSession(t)
	tr.queue(dataMsg("frame-1"), commandMsg("Ok"))

	st, err := s.StreamFrames(context.Background(), "AllFrames", "6D")
	if err != nil {
		t.Fatalf("StreamFrames: %v", err)
	}
	if !st.Next(context.Background()) {
		t.Fatalf("Next = false, err %v", st.Err())
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	want := []string{"StreamFrames AllFrames 6D", "StreamFrames Stop"}
	if got := tr.sentBodies(); !reflect.DeepEqual(got, want) {
		t.Fatalf("sent = %q, want %q", got, want)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if got := tr.sentBodies(); len(got) != len(want) {
		t.Fatalf("second Close sent more commands: %q", got)
	}
}

func TestStreamCloseAfterCancelStillSendsStop(t *testing.T) {
	s, tr := newTestSession(t)
	tr.queue(dataMsg("frame-1"))

	ctx, cancel := context.WithCancel(context.Background())
	st, err := s.StreamFrames(ctx, "AllFrames", "6D")
	if err != nil {
		t.Fatalf("StreamFrames: %v", err)
	}
	if !st.Next(ctx) {
		t.Fatalf("Next = false, err %v", st.Err())
	}
	cancel()
	if st.Next(ctx) {
		t.Fatal("Next = true after cancel")
	}
	if !errors.Is(st.Err(), context.Canceled) {
		t.Fatalf("stream error = %v, want context.Canceled", st.Err())
	}

	// The stop exchange runs on its own context, so the caller's
	// cancellation must not stop cleanup from reaching the server.
	tr.queue(commandMsg("Ok"))
	if err := st.Close(); err != nil {
		t.Fatalf("Close after cancel: %v", err)
	}
	want := []string{"StreamFrames AllFrames 6D", "StreamFrames Stop"}
	if got := tr.sentBodies(); !reflect.DeepEqual(got, want) {
		t.Fatalf("sent = %q, want %q", got, want)
	}
}

func TestStreamSurfacesTransportFailure(t *testing.T) {
	s, tr := newTestSession(t)
	tr.queue(dataMsg("frame-1"))

	st, err := s.StreamFrames(context.Background(), "AllFrames", "6D")
	if err != nil {
		t.Fatalf("StreamFrames: %v", err)
	}
	if !st.Next(context.Background()) {
		t.Fatalf("Next = false, err %v", st.Err())
	}
	tr.failReceives(io.ErrUnexpectedEOF)
	if st.Next(context.Background()) {
		t.Fatal("Next = true after transport failure")
	}
	if !errors.Is(st.Err(), io.ErrUnexpectedEOF) {
		t.Fatalf("stream error = %v", st.Err())
	}
	// Cleanup still attempts the stop command even though the transport
	// is down; the resulting error is the caller's signal to tear down.
	if err := st.Close(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("Close = %v, want transport failure", err)
	}
	if got := tr.sentBodies(); got[len(got)-1] != "StreamFrames Stop" {
		t.Fatalf("sent = %q, want trailing stop", got)
	}
}

func TestStreamErrorReplyReleasesSession(t *testing.T) {
	s, tr := newTestSession(t)
	tr.queue(protocol.Message{Type: protocol.PacketError, Body: []byte("No connection")})

	_, err := s.StreamFrames(context.Background(), "AllFrames", "6D")
	var srvErr *protocol.ServerError
	if !errors.As(err, &srvErr) {
		t.Fatalf("err = %v, want *protocol.ServerError", err)
	}

	done := make(chan error, 1)
	go func() {
		tr.queue(commandMsg("Capture is running"))
		_, err := s.SendCommand(context.Background(), "GetState")
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("SendCommand after failed stream: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session still locked after failed stream start")
	}
}

func TestSessionReportsObservedEvents(t *testing.T) {
	tr := newFakeTransport()
	var seen []protocol.Event
	s := NewSession(tr, Config{
		CommandTimeout: 100 * time.Millisecond,
		Logger:         testlog.Start(t),
		OnEvent:        func(code protocol.Event) { seen = append(seen, code) },
	})
	tr.queue(
		eventMsg(protocol.EventWaitingForTrigger),
		commandMsg("Capture is running"),
		dataMsg("frame-1"),
		eventMsg(protocol.EventCaptureStopped),
		eventMsg(protocol.EventRTFromFileStopped),
	)

	if _, err := s.SendCommand(context.Background(), "GetState"); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	st, err := s.StreamFrames(context.Background(), "AllFrames", "6D")
	if err != nil {
		t.Fatalf("StreamFrames: %v", err)
	}
	for st.Next(context.Background()) {
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := []protocol.Event{
		protocol.EventWaitingForTrigger,
		protocol.EventCaptureStopped,
		protocol.EventRTFromFileStopped,
	}
	if !reflect.DeepEqual(seen, want) {
		t.Fatalf("observed events = %v, want %v", seen, want)
	}
}

func TestStreamHoldsSessionUntilClose(t *testing.T) {
	s, tr := newTestSession(t)
	tr.queue(dataMsg("frame-1"))

	st, err := s.StreamFrames(context.Background(), "AllFrames", "6D")
	if err != nil {
		t.Fatalf("StreamFrames: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.SendCommand(context.Background(), "GetState")
		done <- err
	}()

	// The concurrent command cannot reach the wire while the stream owns
	// the session, no matter how long it has been waiting.
	time.Sleep(30 * time.Millisecond)
	if got := tr.sentBodies(); len(got) != 1 {
		t.Fatalf("sent while streaming = %q", got)
	}

	tr.queue(commandMsg("Ok"), commandMsg("Capture is running"))
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("SendCommand after Close: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session still locked after Close")
	}
	want := []string{"StreamFrames AllFrames 6D", "StreamFrames Stop", "GetState"}
	if got := tr.sentBodies(); !reflect.DeepEqual(got, want) {
		t.Fatalf("sent = %q, want %q", got, want)
	}
}
