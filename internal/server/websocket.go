package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/bastionhq/sessiongate/internal/middleware"
	"github.com/bastionhq/sessiongate/internal/session"
	"github.com/bastionhq/sessiongate/internal/sftpproto"
	"github.com/gorilla/websocket"
)

const (
	wsTextMessage   = 1
	wsBinaryMessage = 2
)

// handleTerminalWS implements ws/terminal/ (spec §6): one task reads
// client frames and forwards them to the SSH backend, the other drains
// backend output and writes it to the client — the two
// per-session tasks of spec §5's concurrency model.
func (s *Server) handleTerminalWS(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	assetID, err := queryUUID(r, "asset_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	accountID, err := queryUUID(r, "account_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cols := queryInt(r, "cols", 80)
	rows := queryInt(r, "rows", 40)

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("terminal websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer ws.Close()

	ctx := r.Context()
	deps := session.TerminalDeps{
		Lookup:     s.deps.Lookup,
		Blocklist:  s.deps.Blocklist,
		Audit:      s.deps.Audit,
		Replay:     s.deps.Replay,
		Counter:    s.deps.Counter,
		Log:        s.logger,
		RecordRoot: s.config.Paths.RecordRoot,
	}

	term, err := session.OpenTerminalSession(ctx, deps, principal, assetID, accountID, cols, rows)
	if err != nil {
		writeWSError(ws, err.Error())
		return
	}
	defer term.Close(ctx)

	readLoopDone := make(chan struct{})
	go func() {
		defer close(readLoopDone)
		if err := term.ReadLoop(ctx, ws); err != nil {
			s.logger.Error("terminal read loop ended", map[string]interface{}{"error": err.Error()})
		}
	}()

	for {
		messageType, payload, err := ws.ReadMessage()
		if err != nil {
			break
		}
		if messageType != wsTextMessage {
			continue
		}
		if err := term.HandleClientText(ctx, string(payload)); err != nil {
			s.logger.Error("terminal client write failed", map[string]interface{}{"error": err.Error()})
			break
		}
	}

	<-readLoopDone
}

// handleFileWS implements ws/file/ (spec §6, §4.2): text frames carry
// the control-message envelope, binary frames carry upload/download
// payload.
func (s *Server) handleFileWS(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	assetID, err := queryUUID(r, "asset_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	accountID, err := queryUUID(r, "account_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("file websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer ws.Close()

	ctx := r.Context()
	deps := session.FileDeps{
		Lookup:   s.deps.Lookup,
		Audit:    s.deps.Audit,
		Log:      s.logger,
		HomeRoot: s.config.Paths.RemoteFileHomePath,
	}

	fs, err := session.OpenFileSession(ctx, deps, principal, assetID, accountID)
	if err != nil {
		writeWSError(ws, err.Error())
		return
	}
	defer fs.Close()

	for {
		messageType, payload, err := ws.ReadMessage()
		if err != nil {
			break
		}

		switch messageType {
		case wsBinaryMessage:
			if err := fs.HandleBinary(ws, payload); err != nil {
				s.logger.Error("file binary handling failed", map[string]interface{}{"error": err.Error()})
				return
			}
		case wsTextMessage:
			var msg sftpproto.ControlMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				writeWSError(ws, sftpproto.ErrBadParams)
				continue
			}
			if err := fs.HandleControl(ctx, ws, msg); err != nil {
				s.logger.Error("file control handling failed", map[string]interface{}{"error": err.Error()})
				return
			}
		}
	}
}

// handleGuacWS implements ws/guacd/ (spec §6, §4.3): client frames are
// written verbatim to guacd, backend instructions are forwarded as
// they arrive via the shared multiplexer.
func (s *Server) handleGuacWS(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	assetID, err := queryUUID(r, "asset_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	accountID, err := queryUUID(r, "account_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	width := queryInt(r, "width", s.config.Screen.Width)
	height := queryInt(r, "height", s.config.Screen.Height)

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("guac websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer ws.Close()

	ctx := r.Context()
	deps := session.GuacDeps{
		Lookup:          s.deps.Lookup,
		Multiplexer:     s.deps.Multiplexer,
		Log:             s.logger,
		GuacdAddr:       guacdAddr(s),
		IgnoreCert:      s.config.Guacd.IgnoreCert,
		Security:        s.config.Guacd.Security,
		EnableWallpaper: s.config.Guacd.EnableWallpaper,
		DisableAuth:     s.config.Guacd.DisableAuth,
	}

	guac, err := session.OpenGuacSession(ctx, deps, principal, assetID, accountID, width, height)
	if err != nil {
		writeWSError(ws, err.Error())
		return
	}
	defer guac.Close()

	guac.Start(ws)

	for {
		messageType, payload, err := ws.ReadMessage()
		if err != nil {
			break
		}
		if messageType != wsTextMessage {
			continue
		}
		if err := guac.HandleClientText(string(payload)); err != nil {
			s.logger.Error("guac client write failed", map[string]interface{}{"error": err.Error()})
			break
		}
	}
}

func guacdAddr(s *Server) string {
	return s.config.Guacd.Host + ":" + strconv.Itoa(s.config.Guacd.Port)
}

func writeWSError(ws *websocket.Conn, message string) {
	frame, err := json.Marshal(sftpproto.Reply{Code: sftpproto.CodeError, Message: message})
	if err != nil {
		return
	}
	_ = ws.WriteMessage(wsTextMessage, frame)
}
