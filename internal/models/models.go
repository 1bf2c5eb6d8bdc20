package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Principal is the authenticated identity behind a session. It is the
// gateway's view of whoever opened the WebSocket; everything about how
// that identity was established (SSO, password, token) lives outside
// this repository.
type Principal struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Asset is a target machine a Principal can open a session against.
type Asset struct {
	ID       uuid.UUID `json:"id" db:"id"`
	Hostname string    `json:"hostname" db:"hostname"`
	IP       string    `json:"ip" db:"ip"`
	Port     int       `json:"port" db:"port"`
	Protocol string    `json:"protocol" db:"protocol"` // "ssh", "rdp" or "vnc"
	OS       string    `json:"os" db:"os"`
}

// Account holds the credentials used to log into an Asset.
type Account struct {
	ID              uuid.UUID `json:"id" db:"id"`
	AssetID         uuid.UUID `json:"asset_id" db:"asset_id"`
	Username        string    `json:"username" db:"username"`
	Password        string    `json:"-" db:"password"`
	VaultSecretPath string    `json:"-" db:"vault_secret_path"`
	IsActive        bool      `json:"is_active" db:"is_active"`
}

// Protocol constants shared by Asset.Protocol and audit records.
const (
	ProtocolSSH = "ssh"
	ProtocolRDP = "rdp"
	ProtocolVNC = "vnc"
)

// AuditRecordType distinguishes the kinds of audit events the gateway
// emits; submit_audit (spec §1) receives one of these per call.
type AuditRecordType string

const (
	AuditCommandLog AuditRecordType = "command_log"
	AuditBlocklist  AuditRecordType = "blocklist"
	AuditUpload     AuditRecordType = "upload"
	AuditDownload   AuditRecordType = "download"
	AuditRename     AuditRecordType = "rename"
	AuditDelete     AuditRecordType = "delete"
)

// AuditRecord is the payload passed to the submit_audit collaborator.
// It covers session-command logs, blocklist hits and file operations —
// the three sources of audit events named in spec §1/§4.
type AuditRecord struct {
	Type          AuditRecordType `json:"type"`
	AssetID       uuid.UUID       `json:"asset_id"`
	AccountID     uuid.UUID       `json:"account_id"`
	UserID        string          `json:"user_id"`
	ConnTag       string          `json:"conn_tag,omitempty"`
	Command       string          `json:"command,omitempty"`
	MatchedTokens []string        `json:"matched_tokens,omitempty"`
	Filename      string          `json:"filename,omitempty"`
	FileSize      int64           `json:"file_size,omitempty"`
	DurationSecs  int             `json:"duration_secs,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// SessionAudit is the persisted row backing ListActive/history queries
// over completed sessions — the repository-facing counterpart of the
// audit collaborator, independent of AuditRecord's event shape.
type SessionAudit struct {
	ID            uuid.UUID    `json:"id" db:"id"`
	UserID        string       `json:"user_id" db:"user_id"`
	AssetID       uuid.UUID    `json:"asset_id" db:"asset_id"`
	AccountID     uuid.UUID    `json:"account_id" db:"account_id"`
	Protocol      string       `json:"protocol" db:"protocol"`
	StartTime     time.Time    `json:"start_time" db:"start_time"`
	EndTime       sql.NullTime `json:"end_time,omitempty" db:"end_time"`
	BytesSent     int64        `json:"bytes_sent" db:"bytes_sent"`
	BytesReceived int64        `json:"bytes_received" db:"bytes_received"`
	SessionStatus string       `json:"session_status" db:"session_status"`
	ClientIP      *string      `json:"client_ip,omitempty" db:"client_ip"`
	ErrorMessage  *string      `json:"error_message,omitempty" db:"error_message"`
	RecordingPath *string      `json:"recording_path,omitempty" db:"recording_path"`
}

const (
	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"
	SessionStatusFailed    = "failed"
)

// WsCode, FileOperationCode, and ListEntry live in internal/sftpproto:
// they are wire-protocol types shared by TerminalSession and
// FileSession (spec §6), not session domain data.
