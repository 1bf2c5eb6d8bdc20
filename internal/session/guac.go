package session

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"syscall"

	"github.com/bastionhq/sessiongate/internal/collab"
	"github.com/bastionhq/sessiongate/internal/guacproto"
	"github.com/bastionhq/sessiongate/internal/logger"
	"github.com/bastionhq/sessiongate/internal/models"
	"github.com/bastionhq/sessiongate/internal/multiplex"
	"github.com/bastionhq/sessiongate/internal/transport"
	"github.com/google/uuid"
)

// GuacDeps bundles GuacSession's external collaborators and the guacd
// connect parameters carried from config.GuacdConfig (spec §9: "global
// singletons become explicit dependencies").
type GuacDeps struct {
	Lookup      collab.AssetAccountLookup
	Multiplexer *multiplex.Multiplexer
	Log         *logger.Logger

	GuacdAddr string

	IgnoreCert      bool
	Security        string
	EnableWallpaper bool
	DisableAuth     bool
}

// GuacSession proxies a Guacamole (RDP/VNC) connection over a
// WebSocket, relaying raw protocol instructions in both directions
// through the shared multiplexer (spec §4.3). It is grounded on the
// teacher's internal/rdp/proxy.go connection-setup and broadcast loop,
// restructured around internal/guacproto's extracted codec and
// internal/multiplex's shared readiness worker instead of a
// per-session goroutine reading its own socket.
type GuacSession struct {
	deps      GuacDeps
	principal models.Principal
	asset     *models.Asset
	account   *models.Account

	conn   net.Conn
	reader *bufio.Reader
	fd     int
	connID []string

	ws wsConn

	mu        sync.Mutex
	closeOnce sync.Once
}

// OpenGuacSession performs on_open: resolves the asset/account, dials
// guacd, and runs the handshake for the asset's declared protocol.
// Registration with the multiplexer happens separately via Start, once
// the caller has a ws to forward instructions to.
func OpenGuacSession(ctx context.Context, deps GuacDeps, principal models.Principal, assetID, accountID uuid.UUID, width, height int) (*GuacSession, error) {
	asset, account, err := deps.Lookup.Lookup(ctx, assetID, accountID)
	if err != nil {
		return nil, newSessionError("AssetNotFound", err.Error())
	}

	conn, err := transport.DialGuacd(deps.GuacdAddr)
	if err != nil {
		return nil, newSessionError("BackendUnreachable", err.Error())
	}

	reader := bufio.NewReader(conn)
	params := guacproto.ConnectParams{
		Protocol:        asset.Protocol,
		Hostname:        asset.IP,
		Port:            asset.Port,
		Username:        account.Username,
		Password:        account.Password,
		Width:           width,
		Height:          height,
		IgnoreCert:      deps.IgnoreCert,
		Security:        deps.Security,
		EnableWallpaper: deps.EnableWallpaper,
		DisableAuth:     deps.DisableAuth,
	}

	connID, err := guacproto.Handshake(conn, reader, params)
	if err != nil {
		conn.Close()
		return nil, newSessionError("BackendUnreachable", err.Error())
	}

	fd, err := socketFd(conn)
	if err != nil {
		conn.Close()
		return nil, newSessionError("BackendUnreachable", err.Error())
	}

	return &GuacSession{
		deps:      deps,
		principal: principal,
		asset:     asset,
		account:   account,
		conn:      conn,
		reader:    reader,
		fd:        fd,
		connID:    connID,
	}, nil
}

// Start registers the guacd socket with the shared multiplexer so
// backend output is forwarded to ws as it arrives.
func (g *GuacSession) Start(ws wsConn) {
	g.mu.Lock()
	g.ws = ws
	g.mu.Unlock()

	g.deps.Multiplexer.Register(g.fd, g.onReadable)
}

// onReadable drains exactly one Guacamole instruction from guacd and
// forwards it to the client verbatim; an "error" instruction closes
// the client connection after the forward (spec §4.3).
func (g *GuacSession) onReadable(fd int) {
	inst, err := guacproto.Read(g.reader)
	if err != nil {
		g.deps.Log.Error("guacd read failed", map[string]interface{}{"error": err.Error()})
		g.closeClient()
		return
	}

	g.mu.Lock()
	ws := g.ws
	g.mu.Unlock()
	if ws == nil {
		return
	}

	frame := guacproto.Encode(inst.Opcode, inst.Args...)
	if err := ws.WriteMessage(wsTextMessage, frame); err != nil {
		g.deps.Log.Error("guac client write failed", map[string]interface{}{"error": err.Error()})
		return
	}

	if inst.IsError() {
		g.closeClient()
	}
}

func (g *GuacSession) closeClient() {
	g.mu.Lock()
	ws := g.ws
	g.mu.Unlock()
	if ws != nil {
		ws.Close()
	}
}

// HandleClientText implements on_client_text: the client frame is
// already a complete Guacamole instruction and is written verbatim to
// the guacd socket (spec §4.3), no decode/re-encode.
func (g *GuacSession) HandleClientText(payload string) error {
	if _, err := g.conn.Write([]byte(payload)); err != nil {
		return fmt.Errorf("write to guacd: %w", err)
	}
	return nil
}

// Close implements on_close: unregisters from the multiplexer by the
// descriptor's current identity and closes the guacd socket. Idempotent.
func (g *GuacSession) Close() error {
	var closeErr error
	g.closeOnce.Do(func() {
		g.deps.Multiplexer.Unregister(g.fd)
		if g.conn != nil {
			closeErr = g.conn.Close()
		}
	})
	return closeErr
}

// socketFd extracts the raw file descriptor backing conn, needed to
// register it with the multiplexer's unix.Select loop.
func socketFd(conn net.Conn) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return 0, fmt.Errorf("connection does not expose a raw file descriptor")
	}

	rawConn, err := sc.SyscallConn()
	if err != nil {
		return 0, fmt.Errorf("failed to get raw connection: %w", err)
	}

	var fd int
	if err := rawConn.Control(func(descriptor uintptr) {
		fd = int(descriptor)
	}); err != nil {
		return 0, fmt.Errorf("failed to access raw fd: %w", err)
	}
	return fd, nil
}
