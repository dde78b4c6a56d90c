package sshgateplus


import (
	"encoding/base64"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

const TRANSFER_CONNECT_TIMEOUT time.Duration = 10 * time.Second

/*
Every file-transfer operation is one-shot: it opens its own
transport and sftp subsystem, does exactly one of list,
download, or upload, and tears the whole connection down.
Transfers never touch a ShellSession's transport and never
share a connection with each other, so they interleave freely.
*/
func (gateway *Gateway) dialTransfer(serverID string) (*ServerRecord, *ssh.Client, *sftp.Client, error) {
	record, err := gateway.Store.GetServer(serverID)
	if err != nil {
		return nil, nil, nil, err
	}
	keyMaterial, err := gateway.Vault.Decrypt(record.EncryptedPrivateKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("credential error: %v", err)
	}
	signer, err := ssh.ParsePrivateKey(keyMaterial)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("credential error: %v", err)
	}
	client, err := dialRemote(record, signer, TRANSFER_CONNECT_TIMEOUT)
	if err != nil {
		return nil, nil, nil, err
	}
	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return nil, nil, nil, fmt.Errorf("sftp subsystem: %v", err)
	}
	return record, client, sftpClient, nil
}

func (gateway *Gateway) listDirectory(connection *ClientConnection, serverID, dirPath string) {
	if dirPath == "" {
		dirPath = "/"
	}
	operation := connection.registerTransfer(TRANSFER_KIND_LIST, serverID, dirPath)
	defer connection.completeTransfer(operation.Token)

	record, client, sftpClient, err := gateway.dialTransfer(serverID)
	if err != nil {
		gateway.emit(connection, listErrorEvent(err.Error()))
		return
	}
	defer client.Close()
	defer sftpClient.Close()

	infos, err := sftpClient.ReadDir(dirPath)
	if err != nil {
		gateway.emit(connection, listErrorEvent(err.Error()))
		return
	}
	entries := make([]DirEntry, 0, len(infos))
	for _, info := range infos {
		entryType := DIR_ENTRY_TYPE_FILE
		if info.IsDir() {
			entryType = DIR_ENTRY_TYPE_DIRECTORY
		}
		entries = append(entries, DirEntry{
			Name:       info.Name(),
			Type:       entryType,
			Size:       info.Size(),
			ModifiedAt: info.ModTime().UTC().Format(time.RFC3339),
		})
	}
	gateway.recordAudit(AUDIT_ACTION_SFTP_ACCESS, record, connection.RemoteAddress)
	gateway.emit(connection, &GatewayEvent{
		Type:    EVENT_LIST_RESULT,
		Path:    dirPath,
		Entries: &entries,
	})
}

// downloadFile streams the whole remote file into memory and
// ships it back base64-encoded in a single event. Partial reads
// are discarded, never emitted.
func (gateway *Gateway) downloadFile(connection *ClientConnection, serverID, remotePath string) {
	operation := connection.registerTransfer(TRANSFER_KIND_DOWNLOAD, serverID, remotePath)
	defer connection.completeTransfer(operation.Token)

	record, client, sftpClient, err := gateway.dialTransfer(serverID)
	if err != nil {
		gateway.emit(connection, transferErrorEvent(err.Error()))
		return
	}
	defer client.Close()
	defer sftpClient.Close()

	remoteFile, err := sftpClient.Open(remotePath)
	if err != nil {
		gateway.emit(connection, transferErrorEvent(err.Error()))
		return
	}
	defer remoteFile.Close()

	contents, err := io.ReadAll(remoteFile)
	if err != nil {
		gateway.emit(connection, transferErrorEvent(err.Error()))
		return
	}
	gateway.recordAudit(AUDIT_ACTION_SFTP_ACCESS, record, connection.RemoteAddress)
	gateway.emit(connection, &GatewayEvent{
		Type:     EVENT_DOWNLOAD_RESULT,
		Path:     remotePath,
		Data:     base64.StdEncoding.EncodeToString(contents),
		Filename: path.Base(remotePath),
	})
}

// uploadFile writes a full base64 payload to remotePath/filename.
// There is no resume; a failed upload is retried whole by the
// client.
func (gateway *Gateway) uploadFile(connection *ClientConnection, serverID, remotePath, filename, data string) {
	operation := connection.registerTransfer(TRANSFER_KIND_UPLOAD, serverID, remotePath)
	defer connection.completeTransfer(operation.Token)

	contents, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		gateway.emit(connection, transferErrorEvent(fmt.Sprintf("malformed upload payload: %v", err)))
		return
	}

	record, client, sftpClient, err := gateway.dialTransfer(serverID)
	if err != nil {
		gateway.emit(connection, transferErrorEvent(err.Error()))
		return
	}
	defer client.Close()
	defer sftpClient.Close()

	fullPath := remotePath + "/" + filename
	if strings.HasSuffix(remotePath, "/") {
		fullPath = remotePath + filename
	}
	remoteFile, err := sftpClient.Create(fullPath)
	if err != nil {
		gateway.emit(connection, transferErrorEvent(err.Error()))
		return
	}
	if _, err := remoteFile.Write(contents); err != nil {
		remoteFile.Close()
		gateway.emit(connection, transferErrorEvent(err.Error()))
		return
	}
	if err := remoteFile.Close(); err != nil {
		gateway.emit(connection, transferErrorEvent(err.Error()))
		return
	}
	gateway.recordAudit(AUDIT_ACTION_SFTP_ACCESS, record, connection.RemoteAddress)
	gateway.emit(connection, &GatewayEvent{
		Type: EVENT_UPLOAD_SUCCESS,
		Path: fullPath,
	})
}
