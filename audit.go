package sshgateplus


import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

const AUDIT_ACTION_SHELL_CONNECT 	string = "ssh_connect"
const AUDIT_ACTION_SHELL_DISCONNECT	string = "ssh_disconnect"
const AUDIT_ACTION_SFTP_ACCESS 		string = "sftp_access"

type AuditRecord struct {
	Action			string	`json:"action"`
	ServerID		string	`json:"serverId,omitempty"`
	ServerName		string	`json:"serverName,omitempty"`
	RemoteAddress	string	`json:"remoteAddress,omitempty"`
	Timestamp		int64	`json:"timestamp"`
}

// AuditRecorder is the boundary to the dashboard's audit log.
// The gateway calls Record fire-and-forget; a failing recorder
// never blocks or fails a session.
type AuditRecorder interface {
	Record(record *AuditRecord) error
}

// FileAuditRecorder appends one JSON line per record and syncs,
// so entries survive an ungraceful process exit.
type FileAuditRecorder struct {
	Path	string
	mutex	sync.Mutex
}

func MakeNewFileAuditRecorder(path string) *FileAuditRecorder {
	return &FileAuditRecorder{Path: path}
}

func (recorder *FileAuditRecorder) Record(record *AuditRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	fd, err := os.OpenFile(recorder.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	if _, err := fd.Write(append(data, '\n')); err != nil {
		fd.Close() // ignore error; Write error takes precedence
		return err
	}
	fd.Sync()
	return fd.Close()
}

// recordAudit fans a record out to the configured recorder without
// ever surfacing a failure to the client.
func (gateway *Gateway) recordAudit(action string, record *ServerRecord, remoteAddress string) {
	if gateway.Audit == nil {
		return
	}
	entry := &AuditRecord{
		Action:			action,
		ServerID:		record.ID,
		ServerName:		record.Name,
		RemoteAddress:	remoteAddress,
		Timestamp:		time.Now().Unix(),
	}
	go func() {
		if err := gateway.Audit.Record(entry); err != nil {
			gateway.Log.Println("error writing audit record:", err)
		}
	}()
}
