package sshgateplus


import (
	"encoding/json"
)

// client -> gateway
const EVENT_START_SHELL 	string = "start-shell"
const EVENT_SHELL_INPUT 	string = "shell-input"
const EVENT_SHELL_RESIZE 	string = "shell-resize"
const EVENT_LIST_DIRECTORY 	string = "list-directory"
const EVENT_DOWNLOAD_FILE 	string = "download-file"
const EVENT_UPLOAD_FILE 	string = "upload-file"

// gateway -> client
const EVENT_SHELL_READY 	string = "shell-ready"
const EVENT_SHELL_DATA 		string = "shell-data"
const EVENT_SHELL_ERROR 	string = "shell-error"
const EVENT_LIST_RESULT 	string = "list-result"
const EVENT_LIST_ERROR 		string = "list-error"
const EVENT_DOWNLOAD_RESULT string = "download-result"
const EVENT_UPLOAD_SUCCESS 	string = "upload-success"
const EVENT_TRANSFER_ERROR 	string = "transfer-error"

/*
GatewayEvents are everything that crosses the web socket,
in both directions. One envelope type covers all of the
named events; unused fields are omitted on the wire.

Data carries raw shell bytes for shell-input/shell-data
and a base64 payload for upload-file/download-result.

Entries is a pointer so that a list-result for an empty
directory still carries "entries": [] on the wire while
every other event type omits the key.
*/
type GatewayEvent struct {
	Type 		string 		`json:"type"`
	ServerID	string 		`json:"serverId,omitempty"`
	Data 		string 		`json:"data,omitempty"`
	Cols 		int 		`json:"cols,omitempty"`
	Rows 		int 		`json:"rows,omitempty"`
	Message		string 		`json:"message,omitempty"`
	Path 		string 		`json:"path,omitempty"`
	RemotePath	string 		`json:"remotePath,omitempty"`
	Filename	string 		`json:"filename,omitempty"`
	Entries		*[]DirEntry	`json:"entries,omitempty"`
}

// one remote directory entry in a list-result.
// ModifiedAt is RFC3339; order is whatever the remote returned.
type DirEntry struct {
	Name 		string 	`json:"name"`
	Type 		string 	`json:"type"`
	Size 		int64 	`json:"size"`
	ModifiedAt	string 	`json:"modifiedAt"`
}

const DIR_ENTRY_TYPE_FILE		string = "file"
const DIR_ENTRY_TYPE_DIRECTORY	string = "directory"

func (event *GatewayEvent) ToJSON() string {
	data, err := json.Marshal(*event)
	if err != nil {
		data = []byte("")
	}
	return string(data)
}

func shellErrorEvent(message string) *GatewayEvent {
	return &GatewayEvent{Type: EVENT_SHELL_ERROR, Message: message}
}

func listErrorEvent(message string) *GatewayEvent {
	return &GatewayEvent{Type: EVENT_LIST_ERROR, Message: message}
}

func transferErrorEvent(message string) *GatewayEvent {
	return &GatewayEvent{Type: EVENT_TRANSFER_ERROR, Message: message}
}
