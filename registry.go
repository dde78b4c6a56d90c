package sshgateplus


import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var ErrShellActive = errors.New("a shell session is already active on this connection")
var ErrUnknownConnection = errors.New("unknown client connection")

const TRANSFER_KIND_LIST		string = "list"
const TRANSFER_KIND_DOWNLOAD	string = "download"
const TRANSFER_KIND_UPLOAD		string = "upload"

// TransferOperation tracks one in-flight sftp request. It lives
// exactly as long as the request that created it.
type TransferOperation struct {
	Token		string
	ServerID	string
	RemotePath	string
	Kind		string
}

/*
A ClientConnection is one browser tab's web socket. It owns at
most one live ShellSession and any number of concurrent
TransferOperations; its mutex serializes mutation of that state
while writeMutex serializes frames onto the socket (gorilla
allows a single writer at a time).
*/
type ClientConnection struct {
	ConnectionID	string
	RemoteAddress	string
	socket			*websocket.Conn
	mutex			sync.Mutex
	writeMutex		sync.Mutex
	shell			*ShellSession
	transfers		map[string]*TransferOperation
}

func (connection *ClientConnection) sendEvent(event *GatewayEvent) error {
	connection.writeMutex.Lock()
	defer connection.writeMutex.Unlock()
	return connection.socket.WriteMessage(websocket.TextMessage, []byte(event.ToJSON()))
}

func (connection *ClientConnection) registerTransfer(kind, serverID, remotePath string) *TransferOperation {
	operation := &TransferOperation{
		Token:		uuid.NewString(),
		ServerID:	serverID,
		RemotePath:	remotePath,
		Kind:		kind,
	}
	connection.mutex.Lock()
	connection.transfers[operation.Token] = operation
	connection.mutex.Unlock()
	return operation
}

func (connection *ClientConnection) completeTransfer(token string) {
	connection.mutex.Lock()
	delete(connection.transfers, token)
	connection.mutex.Unlock()
}

func (connection *ClientConnection) transferCount() int {
	connection.mutex.Lock()
	defer connection.mutex.Unlock()
	return len(connection.transfers)
}

/*
The SessionRegistry is the one shared mutable structure in the
gateway: connection id -> ClientConnection. A Gateway owns
exactly one registry; there is no package-level state, so two
gateways in one process stay independent.

Entries for different connections may be mutated fully in
parallel; the registry mutex only guards the map itself.
*/
type SessionRegistry struct {
	mutex		sync.Mutex
	connections	map[string]*ClientConnection
}

func MakeNewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		connections: map[string]*ClientConnection{},
	}
}

func (registry *SessionRegistry) AddConnection(connectionID, remoteAddress string, socket *websocket.Conn) *ClientConnection {
	connection := &ClientConnection{
		ConnectionID:	connectionID,
		RemoteAddress:	remoteAddress,
		socket:			socket,
		transfers:		map[string]*TransferOperation{},
	}
	registry.mutex.Lock()
	registry.connections[connectionID] = connection
	registry.mutex.Unlock()
	return connection
}

func (registry *SessionRegistry) GetConnection(connectionID string) *ClientConnection {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	return registry.connections[connectionID]
}

// RemoveConnection drops the entry and tears down its shell, if
// any. In-flight transfers are abandoned: their remote reads may
// finish but results are dropped by the dead socket.
func (registry *SessionRegistry) RemoveConnection(connectionID string) {
	registry.mutex.Lock()
	connection := registry.connections[connectionID]
	delete(registry.connections, connectionID)
	registry.mutex.Unlock()
	if connection == nil {
		return
	}
	connection.mutex.Lock()
	shell := connection.shell
	connection.shell = nil
	connection.mutex.Unlock()
	if shell != nil {
		shell.closeHandles()
	}
}

// CreateShell reserves the single shell slot for a connection.
// The slot is taken for the whole connect attempt, so a second
// start-shell arriving mid-dial is rejected too.
func (registry *SessionRegistry) CreateShell(connectionID, serverID string) (*ShellSession, error) {
	connection := registry.GetConnection(connectionID)
	if connection == nil {
		return nil, ErrUnknownConnection
	}
	connection.mutex.Lock()
	defer connection.mutex.Unlock()
	if connection.shell != nil {
		return nil, ErrShellActive
	}
	shell := &ShellSession{
		ConnectionID:	connectionID,
		ServerID:		serverID,
		state:			SHELL_STATE_IDLE,
	}
	connection.shell = shell
	return shell, nil
}

// DestroyShell is idempotent: it detaches whatever shell the
// connection holds and closes its remote handles. Always invoked
// on disconnect, and by the bridge on any failure.
func (registry *SessionRegistry) DestroyShell(connectionID string) {
	connection := registry.GetConnection(connectionID)
	if connection == nil {
		return
	}
	connection.mutex.Lock()
	shell := connection.shell
	connection.shell = nil
	connection.mutex.Unlock()
	if shell != nil {
		shell.closeHandles()
	}
}

func (registry *SessionRegistry) activeShell(connectionID string) *ShellSession {
	connection := registry.GetConnection(connectionID)
	if connection == nil {
		return nil
	}
	connection.mutex.Lock()
	defer connection.mutex.Unlock()
	return connection.shell
}

func (registry *SessionRegistry) ConnectionCount() int {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	return len(registry.connections)
}

func (registry *SessionRegistry) ActiveShellCount() int {
	registry.mutex.Lock()
	connections := make([]*ClientConnection, 0, len(registry.connections))
	for _, connection := range registry.connections {
		connections = append(connections, connection)
	}
	registry.mutex.Unlock()
	count := 0
	for _, connection := range connections {
		connection.mutex.Lock()
		if connection.shell != nil {
			count++
		}
		connection.mutex.Unlock()
	}
	return count
}
