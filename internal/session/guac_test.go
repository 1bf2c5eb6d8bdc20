package session

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/bastionhq/sessiongate/internal/guacproto"
	"github.com/bastionhq/sessiongate/internal/logger"
	"github.com/bastionhq/sessiongate/internal/multiplex"
)

// fakeGuacWS is a minimal wsConn fake recording writes and supporting
// a manual Close flag, for tests that don't need a live WebSocket.
type fakeGuacWS struct {
	written [][]byte
	closed  bool
}

func (f *fakeGuacWS) WriteMessage(messageType int, data []byte) error {
	cp := append([]byte(nil), data...)
	f.written = append(f.written, cp)
	return nil
}

func (f *fakeGuacWS) ReadMessage() (int, []byte, error) { return 0, nil, io.EOF }

func (f *fakeGuacWS) Close() error {
	f.closed = true
	return nil
}

func TestGuacSession_HandleClientText_WritesVerbatim(t *testing.T) {
	client, backend := net.Pipe()
	defer client.Close()
	defer backend.Close()

	g := &GuacSession{
		deps: GuacDeps{Log: logger.New(logger.LevelError, io.Discard)},
		conn: client,
	}

	payload := "4.sync,13.1234567890123;"
	readDone := make(chan string, 1)
	go func() {
		buf := make([]byte, len(payload))
		io.ReadFull(backend, buf)
		readDone <- string(buf)
	}()

	if err := g.HandleClientText(payload); err != nil {
		t.Fatalf("HandleClientText: %v", err)
	}

	select {
	case got := <-readDone:
		if got != payload {
			t.Fatalf("backend received %q, want %q", got, payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("backend did not receive the instruction in time")
	}
}

func TestGuacSession_OnReadable_ForwardsInstructionToClient(t *testing.T) {
	inst := guacproto.Encode("sync", "1234567890")
	reader := bufio.NewReader(bytes.NewReader(inst))
	ws := &fakeGuacWS{}

	g := &GuacSession{
		deps:   GuacDeps{Log: logger.New(logger.LevelError, io.Discard)},
		reader: reader,
		ws:     ws,
	}

	g.onReadable(0)

	if len(ws.written) != 1 {
		t.Fatalf("got %d frames written, want 1", len(ws.written))
	}
	if !bytes.Equal(ws.written[0], inst) {
		t.Fatalf("forwarded frame = %q, want %q", ws.written[0], inst)
	}
	if ws.closed {
		t.Fatal("client should not be closed for a non-error instruction")
	}
}

func TestGuacSession_OnReadable_ClosesClientOnErrorInstruction(t *testing.T) {
	// S6: backend guacd emits 5.error,7.badauth,1.0; -> forwarded
	// verbatim and the client connection is then closed.
	raw := "5.error,7.badauth,1.0;"
	reader := bufio.NewReader(strings.NewReader(raw))
	ws := &fakeGuacWS{}

	g := &GuacSession{
		deps:   GuacDeps{Log: logger.New(logger.LevelError, io.Discard)},
		reader: reader,
		ws:     ws,
	}

	g.onReadable(0)

	if len(ws.written) != 1 {
		t.Fatalf("got %d frames written, want 1", len(ws.written))
	}
	if string(ws.written[0]) != raw {
		t.Fatalf("forwarded frame = %q, want %q", ws.written[0], raw)
	}
	if !ws.closed {
		t.Fatal("client should be closed after forwarding an error instruction")
	}
}

func TestGuacSession_Close_IsIdempotent(t *testing.T) {
	client, backend := net.Pipe()
	defer backend.Close()

	g := &GuacSession{
		deps: GuacDeps{
			Log:         logger.New(logger.LevelError, io.Discard),
			Multiplexer: multiplex.New(logger.New(logger.LevelError, io.Discard)),
		},
		conn: client,
		fd:   0,
	}

	if err := g.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := g.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestSocketFd_ReturnsRawDescriptorForTCPConn(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	fd, err := socketFd(conn)
	if err != nil {
		t.Fatalf("socketFd: %v", err)
	}
	if fd <= 0 {
		t.Fatalf("fd = %d, want a positive descriptor", fd)
	}
}
