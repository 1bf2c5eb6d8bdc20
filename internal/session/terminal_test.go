package session

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/bastionhq/sessiongate/internal/transport"
)

// blockingReader never returns until closed, simulating an SSH backend
// that has gone silent.
type blockingReader struct {
	done chan struct{}
}

func (r *blockingReader) Read(p []byte) (int, error) {
	<-r.done
	return 0, io.EOF
}

func TestReadLoop_IdleTimeoutSendsFrameAndCloses(t *testing.T) {
	orig := transport.IdleTimeout
	transport.IdleTimeout = 20 * time.Millisecond
	defer func() { transport.IdleTimeout = orig }()

	br := &blockingReader{done: make(chan struct{})}
	defer close(br.done)

	term := &TerminalSession{stdout: br}
	ws := &fakeGuacWS{}

	err := term.ReadLoop(context.Background(), ws)
	if err == nil {
		t.Fatal("ReadLoop returned nil error, want idle timeout error")
	}
	if !ws.closed {
		t.Fatal("ws should be closed after idle timeout")
	}
	if len(ws.written) != 1 {
		t.Fatalf("got %d frames written, want 1 idle-disconnect frame", len(ws.written))
	}
	if got := string(ws.written[0]); !contains(got, idleDisconnectMessage) {
		t.Fatalf("frame = %q, want it to contain %q", got, idleDisconnectMessage)
	}
}

func TestReadLoop_EOFReturnsNilAndCloses(t *testing.T) {
	orig := transport.IdleTimeout
	transport.IdleTimeout = time.Second
	defer func() { transport.IdleTimeout = orig }()

	term := &TerminalSession{stdout: eofReader{}}
	ws := &fakeGuacWS{}

	if err := term.ReadLoop(context.Background(), ws); err != nil {
		t.Fatalf("ReadLoop on EOF: %v", err)
	}
	if !ws.closed {
		t.Fatal("ws should be closed after backend EOF")
	}
}

type eofReader struct{}

func (eofReader) Read(p []byte) (int, error) { return 0, io.EOF }

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
