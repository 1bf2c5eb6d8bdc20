// Package transport holds the backend-dialing adapters shared by the
// three session engines (spec §4.4): an SSH client/PTY/shell dialer,
// an SFTP client dialer, and a guacd TCP dialer. It is grounded on the
// teacher's internal/ssh/proxy.go buildSSHConfig/Dial sequence and
// internal/rdp/proxy.go's guacd net.Dial, generalized into reusable
// constructors instead of being inlined in a proxy loop.
package transport

import (
	"fmt"
	"io"
	"time"

	"github.com/bastionhq/sessiongate/internal/models"
	"golang.org/x/crypto/ssh"
)

// IdleTimeout is the per-SSH read timeout of backend silence (spec
// §5): after this much time without backend output the session sends
// an idle-disconnect notice and closes. A var, not a const, so tests
// can shrink it instead of waiting out the real 600s.
var IdleTimeout = 600 * time.Second

const dialTimeout = 10 * time.Second

// DialSSH opens an SSH client connection to asset:account using
// password auth (the gateway resolves credentials through the asset
// lookup collaborator, so private-key auth is not exercised here).
func DialSSH(asset *models.Asset, account *models.Account) (*ssh.Client, error) {
	if account.Password == "" {
		return nil, fmt.Errorf("no authentication method available")
	}

	config := &ssh.ClientConfig{
		User:            account.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(account.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         dialTimeout,
	}

	addr := fmt.Sprintf("%s:%d", asset.IP, asset.Port)
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SSH server: %w", err)
	}
	return client, nil
}

// OpenShell requests a PTY and starts an interactive shell on client,
// returning the session and its stdin/stdout pipes. The pipes must be
// obtained before Shell() is called: golang.org/x/crypto/ssh returns
// "ssh: StdinPipe after process started" (and the stdout equivalent)
// once the session has started.
func OpenShell(client *ssh.Client, cols, rows int) (session *ssh.Session, stdin io.WriteCloser, stdout io.Reader, err error) {
	session, err = client.NewSession()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create SSH session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}

	if cols == 0 {
		cols = 80
	}
	if rows == 0 {
		rows = 40
	}

	if err := session.RequestPty("xterm-256color", rows, cols, modes); err != nil {
		session.Close()
		return nil, nil, nil, fmt.Errorf("failed to request PTY: %w", err)
	}

	stdin, err = session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, nil, nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}

	stdout, err = session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, nil, nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		return nil, nil, nil, fmt.Errorf("failed to start shell: %w", err)
	}

	return session, stdin, stdout, nil
}
