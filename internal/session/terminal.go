package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bastionhq/sessiongate/internal/collab"
	"github.com/bastionhq/sessiongate/internal/logger"
	"github.com/bastionhq/sessiongate/internal/models"
	"github.com/bastionhq/sessiongate/internal/sftpproto"
	"github.com/bastionhq/sessiongate/internal/transport"
	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"
)

// wsConn is the subset of *gorilla/websocket.Conn TerminalSession
// depends on, so tests can substitute a fake.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

const (
	wsTextMessage   = 1
	wsBinaryMessage = 2
)

// TerminalDeps bundles TerminalSession's external collaborators (spec
// §9: "global singletons become explicit dependencies").
type TerminalDeps struct {
	Lookup     collab.AssetAccountLookup
	Blocklist  collab.BlocklistSource
	Audit      collab.AuditSubmitter
	Replay     collab.ReplayUploader
	Counter    collab.Counter
	Log        *logger.Logger
	RecordRoot string
}

// TerminalSession proxies an interactive SSH shell over a WebSocket,
// reconstructing completed command lines for audit and recording
// backend output as an asciicast (spec §4.1). It is grounded on the
// teacher's internal/ssh/proxy.go Handle loop, restructured per
// original_source/terminal/ssh_websocket.py's echo-suppression and
// line-reconstruction rules.
type TerminalSession struct {
	deps      TerminalDeps
	principal models.Principal
	asset     *models.Asset
	account   *models.Account

	sshClient  *ssh.Client
	sshSession *ssh.Session
	stdin      io.WriteCloser
	stdout     io.Reader

	recorder   *Recorder
	recordPath string
	startTime  time.Time

	mu            sync.Mutex
	reconstructor lineReconstructor
	closeOnce     sync.Once
}

// sessionError classifies on_open failures by a spec §7 taxonomy kind
// string ("AssetNotFound", "BackendUnreachable"); Error() renders it
// as "kind: message", which is what the handlers send to the client.
type sessionError struct {
	kind    string
	message string
}

func (e *sessionError) Error() string { return fmt.Sprintf("%s: %s", e.kind, e.message) }

func newSessionError(kind, message string) error {
	return &sessionError{kind: kind, message: message}
}

// OpenTerminalSession performs on_open: resolves the asset/account,
// dials SSH, allocates a PTY and shell, and opens the recorder.
func OpenTerminalSession(ctx context.Context, deps TerminalDeps, principal models.Principal, assetID, accountID uuid.UUID, cols, rows int) (*TerminalSession, error) {
	asset, account, err := deps.Lookup.Lookup(ctx, assetID, accountID)
	if err != nil {
		return nil, newSessionError("AssetNotFound", err.Error())
	}

	sshClient, err := transport.DialSSH(asset, account)
	if err != nil {
		return nil, newSessionError("BackendUnreachable", err.Error())
	}

	sshSession, stdin, stdout, err := transport.OpenShell(sshClient, cols, rows)
	if err != nil {
		sshClient.Close()
		return nil, newSessionError("BackendUnreachable", err.Error())
	}

	now := time.Now()
	path := RecordingPath(deps.RecordRoot, account.Username, asset.IP, now)
	rec, err := NewRecorder(path, RecordingWidth, RecordingHeight, os.Getenv("TERM"), "/bin/bash")
	if err != nil {
		deps.Log.Error("failed to open recorder", map[string]interface{}{"error": err.Error()})
	}

	deps.Counter.Incr(collab.OnlineConnectionCounter)

	return &TerminalSession{
		deps:       deps,
		principal:  principal,
		asset:      asset,
		account:    account,
		sshClient:  sshClient,
		sshSession: sshSession,
		stdin:      stdin,
		stdout:     stdout,
		recorder:   rec,
		recordPath: path,
		startTime:  now,
	}, nil
}

// HandleClientText implements on_client_text: forwards payload to the
// SSH channel, checks it against the blocklist first, and feeds it
// through the line reconstructor.
func (t *TerminalSession) HandleClientText(ctx context.Context, payload string) error {
	blocked := t.checkBlocklist(ctx, payload)
	_ = blocked

	t.mu.Lock()
	t.reconstructor.Apply(payload)
	t.mu.Unlock()

	toSend := payload
	if !strings.HasSuffix(toSend, "\n") {
		toSend += "\n"
	}

	if _, err := t.stdin.Write([]byte(toSend)); err != nil {
		return fmt.Errorf("write to SSH stdin: %w", err)
	}

	return nil
}

func (t *TerminalSession) checkBlocklist(ctx context.Context, payload string) []string {
	snapshot, err := t.deps.Blocklist.Snapshot(ctx)
	if err != nil || len(snapshot) == 0 {
		return nil
	}

	matched := matchedBlocklistTokens(payload, snapshot)
	if len(matched) == 0 {
		return nil
	}

	// the blocklist audit must land before the payload reaches the
	// backend (spec §5), so this runs synchronously before the caller
	// writes to stdin.
	t.deps.Audit.Submit(ctx, models.AuditRecord{
		Type:          models.AuditBlocklist,
		AssetID:       t.asset.ID,
		AccountID:     t.account.ID,
		UserID:        t.principal.UserID,
		Command:       payload,
		MatchedTokens: matched,
		CreatedAt:     time.Now(),
	})
	return matched
}

// idleDisconnectMessage is the localized frame sent when the backend
// has gone silent past transport.IdleTimeout (spec §4.1/§5).
const idleDisconnectMessage = "由于长时间没有操作，连接已断开!"

type backendRead struct {
	chunk string
	err   error
}

// ReadLoop drains SSH stdout, forwarding to ws and recording until the
// backend closes, errors, or goes silent past transport.IdleTimeout
// (spec §4.1: "The loop terminates on (a) EOF ... (b) read timeout (10
// min) ... (c) channel exit-ready — each sends a localized error frame
// and closes"). t.stdout is a plain io.Reader with no deadline support,
// so the idle timeout is enforced by racing each read against a timer
// in a select, reading on a background goroutine that outlives a timed
// -out iteration.
func (t *TerminalSession) ReadLoop(ctx context.Context, ws wsConn) error {
	reader := bufio.NewReaderSize(t.stdout, 1024)
	reads := make(chan backendRead)

	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := reader.Read(buf)
			var chunk string
			if n > 0 {
				chunk = string(buf[:n])
			}
			reads <- backendRead{chunk: chunk, err: err}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-time.After(transport.IdleTimeout):
			t.sendError(ws, idleDisconnectMessage)
			ws.Close()
			return fmt.Errorf("idle timeout after %s", transport.IdleTimeout)

		case r := <-reads:
			if r.chunk != "" {
				t.handleBackendChunk(ws, r.chunk)
			}
			if r.err != nil {
				if r.err == io.EOF {
					t.sendError(ws, idleDisconnectMessage)
					ws.Close()
					return nil
				}
				t.sendError(ws, idleDisconnectMessage)
				ws.Close()
				return fmt.Errorf("SSH stdout read error: %w", r.err)
			}
		}
	}
}

func (t *TerminalSession) sendError(ws wsConn, message string) {
	frame, err := json.Marshal(sftpproto.Reply{Code: sftpproto.CodeError, Message: message})
	if err != nil {
		return
	}
	_ = ws.WriteMessage(wsTextMessage, frame)
}

func (t *TerminalSession) handleBackendChunk(ws wsConn, chunk string) {
	t.mu.Lock()
	// Substring check, not equality — preserved verbatim per spec §9
	// Open Questions ("the echo-suppression check s.strip()+"\n" in
	// cmd_tmp is substring-based in the source").
	isEcho := strings.Contains(t.reconstructor.cmdTmp, strings.TrimSpace(chunk)+"\n")
	if isEcho {
		t.mu.Unlock()
		return
	}
	if t.reconstructor.tabPending {
		t.reconstructor.ApplyTabCompletion(chunk)
	}
	if t.reconstructor.historyPending {
		t.reconstructor.ApplyHistoryRecall(chunk)
	}
	t.mu.Unlock()

	frame, err := json.Marshal(sftpproto.Reply{Code: sftpproto.CodeText, Message: chunk})
	if err == nil {
		_ = ws.WriteMessage(wsTextMessage, frame)
	}

	if t.recorder != nil {
		if err := t.recorder.Append(chunk); err != nil {
			t.deps.Log.Error("recorder append failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

// Close implements on_close: finalizes any in-progress command,
// flushes and uploads the recording, decrements the online counter.
// Idempotent.
func (t *TerminalSession) Close(ctx context.Context) error {
	var closeErr error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		// Shutdown finalization (spec §4.1): the vi/fg/ctrl-Z redaction
		// runs over cmd_history regardless of whether anything else
		// consumes the result, mirroring the original's handle_cmd() call
		// at this point in disconnect().
		t.reconstructor.cmdHistory = finalizeHistory(t.reconstructor.cmdHistory)
		pendingCmd := t.reconstructor.cmdTmp
		t.mu.Unlock()

		// on_close finalizes only the in-progress command line (if any)
		// to a single command-log audit; completed cmd_history entries are
		// not individually re-audited here, matching
		// original_source/terminal/ssh_websocket.py's disconnect(), which
		// calls command_log.delay exactly once with self.cmd_tmp.
		if strings.TrimSpace(pendingCmd) != "" {
			t.deps.Audit.Submit(ctx, models.AuditRecord{
				Type:         models.AuditCommandLog,
				AssetID:      t.asset.ID,
				AccountID:    t.account.ID,
				UserID:       t.principal.UserID,
				Command:      pendingCmd,
				DurationSecs: int(time.Since(t.startTime).Seconds()),
				CreatedAt:    time.Now(),
			})
		}

		if t.recorder != nil {
			if err := t.recorder.Close(); err != nil {
				t.deps.Log.Error("recorder close failed", map[string]interface{}{"error": err.Error()})
			} else {
				t.uploadReplay(ctx)
			}
		}

		if t.stdin != nil {
			t.stdin.Close()
		}
		if t.sshSession != nil {
			t.sshSession.Close()
		}
		if t.sshClient != nil {
			t.sshClient.Close()
		}

		t.deps.Counter.Decr(collab.OnlineConnectionCounter)
	})
	return closeErr
}

func (t *TerminalSession) uploadReplay(ctx context.Context) {
	file, err := os.Open(t.recordPath)
	if err != nil {
		t.deps.Log.Error("failed to open recording for upload", map[string]interface{}{"error": err.Error()})
		return
	}
	defer file.Close()

	if _, err := t.deps.Replay.Upload(ctx, t.recordPath, file); err != nil {
		t.deps.Log.Error("replay upload failed", map[string]interface{}{"error": err.Error()})
	}
}
