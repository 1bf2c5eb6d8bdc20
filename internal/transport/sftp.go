package transport

import (
	"fmt"

	"github.com/bastionhq/sessiongate/internal/models"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// DialSFTP opens an SSH connection and layers an SFTP client on top
// of it, returning both so the caller can close them together on
// session teardown. pkg/sftp is the de facto standard Go SFTP client
// built on golang.org/x/crypto/ssh and is used here the way the
// original gateway wraps a paramiko SFTP client over its SSH
// transport.
func DialSFTP(asset *models.Asset, account *models.Account) (*ssh.Client, *sftp.Client, error) {
	sshClient, err := DialSSH(asset, account)
	if err != nil {
		return nil, nil, err
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, nil, fmt.Errorf("failed to start SFTP client: %w", err)
	}

	return sshClient, sftpClient, nil
}
