package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sync"
	"time"

	"github.com/bastionhq/sessiongate/internal/collab"
	"github.com/bastionhq/sessiongate/internal/logger"
	"github.com/bastionhq/sessiongate/internal/models"
	"github.com/bastionhq/sessiongate/internal/sftpproto"
	"github.com/bastionhq/sessiongate/internal/transport"
	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// FileDeps bundles FileSession's external collaborators, mirroring
// TerminalDeps (spec §9).
type FileDeps struct {
	Lookup   collab.AssetAccountLookup
	Audit    collab.AuditSubmitter
	Log      *logger.Logger
	HomeRoot string // spec §6 remote_file_home_path
}

// pendingUpload is the metadata an in-progress UPLOAD carries until
// FINISH arrives (spec §3: "present iff remote_upload_fd is present").
type pendingUpload struct {
	originPath string
	filename   string
}

// FileSession proxies an SFTP file-management session over a single
// WebSocket (spec §4.2), dispatching a typed control-message protocol
// and streaming binary upload/download payloads. It is grounded on the
// teacher's connection-setup shape (internal/transport SSH/SFTP
// dialer) and original_source/terminal/sftp_websocket.py +
// utils/sftp_client.py for the per-operation semantics and the exact
// error strings the client UI matches on.
type FileSession struct {
	deps      FileDeps
	principal models.Principal
	asset     *models.Asset
	account   *models.Account
	connTag   string

	sshClient  *ssh.Client
	sftpClient *sftp.Client

	mu          sync.Mutex
	currentPath string
	uploadFile  *sftp.File
	uploadMeta  *pendingUpload
	isDownload  *bool // nil == "none" (spec §3 tri-state mode flag)
}

// OpenFileSession performs FileSession's connection setup: resolves
// the asset/account, dials SFTP over the same credentials a
// TerminalSession would use, and pins current_path at the configured
// home root, creating it if it does not exist (spec §4.4).
func OpenFileSession(ctx context.Context, deps FileDeps, principal models.Principal, assetID, accountID uuid.UUID) (*FileSession, error) {
	asset, account, err := deps.Lookup.Lookup(ctx, assetID, accountID)
	if err != nil {
		return nil, newSessionError("AssetNotFound", err.Error())
	}

	sshClient, sftpClient, err := transport.DialSFTP(asset, account)
	if err != nil {
		return nil, newSessionError("BackendUnreachable", err.Error())
	}

	home := deps.HomeRoot
	if _, err := sftpClient.Stat(home); err != nil {
		if err := sftpClient.MkdirAll(home); err != nil {
			sftpClient.Close()
			sshClient.Close()
			return nil, newSessionError("BackendUnreachable", fmt.Sprintf("create home dir: %v", err))
		}
	}

	connTag := fmt.Sprintf("%s_%s_%s", account.Username, asset.IP, time.Now().Format("20060102150405"))

	return &FileSession{
		deps:        deps,
		principal:   principal,
		asset:       asset,
		account:     account,
		connTag:     connTag,
		sshClient:   sshClient,
		sftpClient:  sftpClient,
		currentPath: home,
	}, nil
}

// HandleControl dispatches one decoded control message and writes its
// reply (or error frame) to ws directly — DOWNLOAD additionally
// streams binary frames to ws before its final reply.
func (f *FileSession) HandleControl(ctx context.Context, ws wsConn, msg sftpproto.ControlMessage) error {
	switch msg.Code {
	case sftpproto.OpListDir:
		return f.replyListing(ws)
	case sftpproto.OpMkdir:
		return f.handleMkdir(ws, msg.Params)
	case sftpproto.OpMkfile:
		return f.handleMkfile(ws, msg.Params)
	case sftpproto.OpRename:
		return f.handleRename(ctx, ws, msg.Params)
	case sftpproto.OpDelete:
		return f.handleDelete(ctx, ws, msg.Params)
	case sftpproto.OpCwd:
		return f.handleCwd(ws, msg.Params)
	case sftpproto.OpUpload:
		return f.handleUpload(ws, msg.Params)
	case sftpproto.OpDownload:
		return f.handleDownload(ctx, ws, msg.Params)
	case sftpproto.OpFinish:
		return f.handleFinish(ctx, ws)
	default:
		return f.replyError(ws, "暂不支持的文件操作！")
	}
}

// HandleBinary implements the active binary framing (spec §6): the
// payload is appended to the open upload file unless a download is in
// flight or no upload is open, in which case a parse-failure error is
// sent. An empty client→gateway frame is ignored.
func (f *FileSession) HandleBinary(ws wsConn, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	f.mu.Lock()
	active := f.uploadFile != nil && (f.isDownload == nil || !*f.isDownload)
	file := f.uploadFile
	f.mu.Unlock()

	if !active {
		return f.replyError(ws, sftpproto.ErrParseFailure)
	}
	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("write upload chunk: %w", err)
	}
	return nil
}

func (f *FileSession) handleMkdir(ws wsConn, raw json.RawMessage) error {
	var p sftpproto.MkdirParams
	if err := json.Unmarshal(raw, &p); err != nil || p.Name == "" {
		return f.replyError(ws, sftpproto.ErrBadParams)
	}
	f.mu.Lock()
	target := path.Join(f.currentPath, p.Name)
	f.mu.Unlock()

	if err := f.sftpClient.Mkdir(target); err != nil {
		return fmt.Errorf("mkdir %s: %w", target, err)
	}
	return f.replyListing(ws)
}

func (f *FileSession) handleMkfile(ws wsConn, raw json.RawMessage) error {
	var p sftpproto.MkfileParams
	if err := json.Unmarshal(raw, &p); err != nil || p.Name == "" {
		return f.replyError(ws, sftpproto.ErrBadParams)
	}
	f.mu.Lock()
	target := path.Join(f.currentPath, p.Name)
	f.mu.Unlock()

	file, err := f.sftpClient.Create(target)
	if err != nil {
		return fmt.Errorf("mkfile %s: %w", target, err)
	}
	file.Close()
	return f.replyListing(ws)
}

func (f *FileSession) handleRename(ctx context.Context, ws wsConn, raw json.RawMessage) error {
	var p sftpproto.RenameParams
	if err := json.Unmarshal(raw, &p); err != nil || p.OldName == "" || p.NewName == "" {
		return f.replyError(ws, sftpproto.ErrBadParams)
	}
	f.mu.Lock()
	oldPath := path.Join(f.currentPath, p.OldName)
	newPath := path.Join(f.currentPath, p.NewName)
	f.mu.Unlock()

	if err := f.sftpClient.Rename(oldPath, newPath); err != nil {
		return f.replyError(ws, "重命名失败！")
	}

	f.deps.Audit.Submit(ctx, models.AuditRecord{
		Type:      models.AuditRename,
		AssetID:   f.asset.ID,
		AccountID: f.account.ID,
		UserID:    f.principal.UserID,
		ConnTag:   f.connTag,
		Filename:  p.NewName,
		CreatedAt: time.Now(),
	})
	return f.replyListing(ws)
}

func (f *FileSession) handleDelete(ctx context.Context, ws wsConn, raw json.RawMessage) error {
	var p sftpproto.DeleteParams
	if err := json.Unmarshal(raw, &p); err != nil || p.Filename == "" {
		return f.replyError(ws, sftpproto.ErrBadParams)
	}
	f.mu.Lock()
	target := path.Join(f.currentPath, p.Filename)
	f.mu.Unlock()

	var err error
	if p.Truthy() {
		err = f.sftpClient.RemoveDirectory(target)
	} else {
		err = f.sftpClient.Remove(target)
	}
	if err != nil {
		return f.replyError(ws, "fail")
	}

	f.deps.Audit.Submit(ctx, models.AuditRecord{
		Type:      models.AuditDelete,
		AssetID:   f.asset.ID,
		AccountID: f.account.ID,
		UserID:    f.principal.UserID,
		ConnTag:   f.connTag,
		Filename:  p.Filename,
		CreatedAt: time.Now(),
	})
	return f.replyListing(ws)
}

// handleCwd implements the home-pinning rule of spec §4.2/testable
// property 5: an empty dir_name means "up one level", except when
// current_path is already the home root, where it is a no-op.
func (f *FileSession) handleCwd(ws wsConn, raw json.RawMessage) error {
	var p sftpproto.CwdParams
	_ = json.Unmarshal(raw, &p)

	f.mu.Lock()
	f.currentPath = nextCwdPath(f.currentPath, f.deps.HomeRoot, p.DirName)
	f.mu.Unlock()

	return f.replyListing(ws)
}

// nextCwdPath computes CWD's next current_path (spec §4.2/testable
// property 5): descending into dirName when given, otherwise stepping
// up one level unless current is already the home root, where it is a
// no-op rather than escaping above it.
func nextCwdPath(current, homeRoot, dirName string) string {
	if dirName != "" {
		return path.Join(current, dirName)
	}
	if current == homeRoot {
		return current
	}
	return path.Dir(current)
}

// handleUpload implements UPLOAD: the same-name collision check is a
// real Stat, not the original_source's directory-listing-of-a-file
// call (which only raised on a path that didn't exist yet and so never
// actually caught a collision) — spec §4.2/§8 testable property 6
// requires the check to work, so this corrects that bug rather than
// reproducing it (see DESIGN.md).
func (f *FileSession) handleUpload(ws wsConn, raw json.RawMessage) error {
	var p sftpproto.UploadParams
	if err := json.Unmarshal(raw, &p); err != nil || p.OriginPath == "" || p.Filename == "" {
		return f.replyError(ws, "上传文件参数不正确")
	}

	f.mu.Lock()
	if f.uploadFile != nil {
		f.mu.Unlock()
		return f.replyError(ws, sftpproto.ErrNameCollision)
	}
	target := path.Join(f.currentPath, p.Filename)
	f.mu.Unlock()

	if _, err := f.sftpClient.Stat(target); err == nil {
		return f.replyError(ws, sftpproto.ErrNameCollision)
	}

	file, err := f.sftpClient.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_APPEND)
	if err != nil {
		return fmt.Errorf("open upload file %s: %w", target, err)
	}

	no := false
	f.mu.Lock()
	f.uploadFile = file
	f.uploadMeta = &pendingUpload{originPath: p.OriginPath, filename: p.Filename}
	f.isDownload = &no
	f.mu.Unlock()

	return f.replyRaw(ws, sftpproto.CodeSuccess, "success")
}

// handleDownload streams the requested file back as 32 KiB binary
// frames terminated by one empty binary frame (spec §4.2/§6).
func (f *FileSession) handleDownload(ctx context.Context, ws wsConn, raw json.RawMessage) error {
	var p sftpproto.DownloadParams
	if err := json.Unmarshal(raw, &p); err != nil || p.Filename == "" {
		return f.replyError(ws, sftpproto.ErrDownloadFail)
	}

	f.mu.Lock()
	target := path.Join(f.currentPath, p.Filename)
	f.mu.Unlock()

	info, err := f.sftpClient.Stat(target)
	if err != nil || info.IsDir() {
		return f.replyError(ws, sftpproto.ErrDownloadFail)
	}

	file, err := f.sftpClient.Open(target)
	if err != nil {
		return f.replyError(ws, sftpproto.ErrDownloadFail)
	}
	defer file.Close()

	yes := true
	f.mu.Lock()
	f.isDownload = &yes
	f.mu.Unlock()

	buf := make([]byte, sftpproto.DownloadChunkSize)
	var sent int64
	for {
		n, readErr := file.Read(buf)
		if n > 0 {
			if err := ws.WriteMessage(wsBinaryMessage, buf[:n]); err != nil {
				return fmt.Errorf("write download chunk: %w", err)
			}
			sent += int64(n)
		}
		if readErr != nil {
			break
		}
	}
	if err := ws.WriteMessage(wsBinaryMessage, []byte{}); err != nil {
		return fmt.Errorf("write download sentinel: %w", err)
	}

	f.mu.Lock()
	f.isDownload = nil
	f.mu.Unlock()

	f.deps.Audit.Submit(ctx, models.AuditRecord{
		Type:      models.AuditDownload,
		AssetID:   f.asset.ID,
		AccountID: f.account.ID,
		UserID:    f.principal.UserID,
		ConnTag:   f.connTag,
		Filename:  p.Filename,
		FileSize:  sent,
		CreatedAt: time.Now(),
	})
	return nil
}

// handleFinish closes the in-progress upload file and audits it with
// file_size:0, matching the original's FINISH-time audit call (spec
// §4.2 table).
func (f *FileSession) handleFinish(ctx context.Context, ws wsConn) error {
	f.mu.Lock()
	file := f.uploadFile
	meta := f.uploadMeta
	f.uploadFile = nil
	f.uploadMeta = nil
	f.isDownload = nil
	f.mu.Unlock()

	if file == nil {
		return f.replyListing(ws)
	}
	if err := file.Close(); err != nil {
		f.deps.Log.Error("upload file close failed", map[string]interface{}{"error": err.Error()})
	}

	f.deps.Audit.Submit(ctx, models.AuditRecord{
		Type:      models.AuditUpload,
		AssetID:   f.asset.ID,
		AccountID: f.account.ID,
		UserID:    f.principal.UserID,
		ConnTag:   f.connTag,
		Filename:  meta.filename,
		FileSize:  0,
		CreatedAt: time.Now(),
	})
	return f.replyListing(ws)
}

func (f *FileSession) listing() ([]sftpproto.ListEntry, error) {
	f.mu.Lock()
	dir := f.currentPath
	f.mu.Unlock()

	infos, err := f.sftpClient.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list dir %s: %w", dir, err)
	}

	entries := make([]sftpproto.ListEntry, len(infos))
	for i, info := range infos {
		entries[i] = sftpproto.ListEntry{Name: info.Name(), IsDir: info.IsDir(), ID: i}
	}
	return entries, nil
}

// replyListing sends a success reply whose Message is the JSON-encoded
// current directory listing (spec §4.2: "each success reply includes
// an updated directory listing").
func (f *FileSession) replyListing(ws wsConn) error {
	entries, err := f.listing()
	if err != nil {
		return f.replyError(ws, err.Error())
	}
	body, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal listing: %w", err)
	}
	return f.replyRaw(ws, sftpproto.CodeSuccess, string(body))
}

func (f *FileSession) replyError(ws wsConn, message string) error {
	return f.replyRaw(ws, sftpproto.CodeError, message)
}

func (f *FileSession) replyRaw(ws wsConn, code sftpproto.WsCode, message string) error {
	frame, err := json.Marshal(sftpproto.Reply{Code: code, Message: message})
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}
	return ws.WriteMessage(wsTextMessage, frame)
}

// Close releases the SFTP/SSH transport and any in-progress upload
// file on every exit path (spec §5 lifecycle discipline). Idempotent.
func (f *FileSession) Close() error {
	f.mu.Lock()
	file := f.uploadFile
	f.uploadFile = nil
	f.mu.Unlock()

	if file != nil {
		file.Close()
	}
	if f.sftpClient != nil {
		f.sftpClient.Close()
	}
	if f.sshClient != nil {
		f.sshClient.Close()
	}
	return nil
}
