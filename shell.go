package sshgateplus


import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

const SHELL_CONNECT_TIMEOUT time.Duration = 20 * time.Second

const SHELL_STATE_IDLE 			int = 0
const SHELL_STATE_CONNECTING 	int = 1
const SHELL_STATE_AUTHENTICATED	int = 2
const SHELL_STATE_OPEN 			int = 3
const SHELL_STATE_CLOSED 		int = 4

/*
A ShellSession bridges one ClientConnection to one remote
interactive shell. It only ever moves forward through
Idle -> Connecting -> Authenticated -> ShellOpen -> Closed;
a failed or finished session is never reused, the client
issues a fresh start-shell instead.
*/
type ShellSession struct {
	ConnectionID	string
	ServerID		string
	mutex			sync.Mutex
	state			int
	remoteClient	*ssh.Client
	remoteSession	*ssh.Session
	stdin			io.WriteCloser
}

func (shell *ShellSession) currentState() int {
	shell.mutex.Lock()
	defer shell.mutex.Unlock()
	return shell.state
}

func (shell *ShellSession) transition(state int) bool {
	shell.mutex.Lock()
	defer shell.mutex.Unlock()
	if shell.state == SHELL_STATE_CLOSED {
		return false
	}
	shell.state = state
	return true
}

// attachClient hands the freshly-authenticated transport to the
// session. Returns false if the session was closed mid-dial, in
// which case the caller owns closing the transport.
func (shell *ShellSession) attachClient(client *ssh.Client) bool {
	shell.mutex.Lock()
	defer shell.mutex.Unlock()
	if shell.state == SHELL_STATE_CLOSED {
		return false
	}
	shell.remoteClient = client
	shell.state = SHELL_STATE_AUTHENTICATED
	return true
}

func (shell *ShellSession) attachSession(session *ssh.Session, stdin io.WriteCloser) bool {
	shell.mutex.Lock()
	defer shell.mutex.Unlock()
	if shell.state == SHELL_STATE_CLOSED {
		return false
	}
	shell.remoteSession = session
	shell.stdin = stdin
	shell.state = SHELL_STATE_OPEN
	return true
}

// closeHandles tears down whatever remote state exists. Safe to
// call any number of times, from any goroutine.
func (shell *ShellSession) closeHandles() {
	shell.mutex.Lock()
	session := shell.remoteSession
	client := shell.remoteClient
	shell.remoteSession = nil
	shell.remoteClient = nil
	shell.stdin = nil
	shell.state = SHELL_STATE_CLOSED
	shell.mutex.Unlock()
	if session != nil {
		session.Close()
	}
	if client != nil {
		client.Close()
	}
}

func (shell *ShellSession) writeInput(data string) error {
	shell.mutex.Lock()
	stdin := shell.stdin
	open := shell.state == SHELL_STATE_OPEN
	shell.mutex.Unlock()
	if !open || stdin == nil {
		return nil // no shell to write to; input is dropped
	}
	_, err := stdin.Write([]byte(data))
	return err
}

// resize forwards the latest window size straight through,
// last-write-wins. Stale sizes are never queued.
func (shell *ShellSession) resize(cols, rows int) {
	shell.mutex.Lock()
	session := shell.remoteSession
	open := shell.state == SHELL_STATE_OPEN
	shell.mutex.Unlock()
	if !open || session == nil {
		return
	}
	_ = session.WindowChange(rows, cols)
}

// dialRemote opens and authenticates a transport to the record's
// host within the given bound. The signer is the caller's
// just-decrypted key; it is not retained.
func dialRemote(record *ServerRecord, signer ssh.Signer, timeout time.Duration) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User:            record.Username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}
	address := record.address()
	socket, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to %v: %w", address, err)
	}
	remoteConn, remoteChannels, remoteRequests, err := ssh.NewClientConn(socket, address, config)
	if err != nil {
		socket.Close()
		return nil, fmt.Errorf("handshake with %v: %w", address, err)
	}
	return ssh.NewClient(remoteConn, remoteChannels, remoteRequests), nil
}

/*
startShell runs the ordered start-shell protocol: resolve the
record, decrypt the key, dial, open a pty shell, then emit
shell-ready and start pumping. Any failure along the way tears
down whatever was built, emits a single shell-error, and leaves
no shell state behind; the client must re-issue start-shell.
*/
func (gateway *Gateway) startShell(connection *ClientConnection, serverID string) {
	shell, err := gateway.Registry.CreateShell(connection.ConnectionID, serverID)
	if err != nil {
		gateway.emit(connection, shellErrorEvent(err.Error()))
		return
	}

	fail := func(message string) {
		gateway.Registry.DestroyShell(connection.ConnectionID)
		gateway.emit(connection, shellErrorEvent(message))
	}

	record, err := gateway.Store.GetServer(serverID)
	if err != nil {
		fail(err.Error())
		return
	}

	keyMaterial, err := gateway.Vault.Decrypt(record.EncryptedPrivateKey)
	if err != nil {
		fail(fmt.Sprintf("credential error: %v", err))
		return
	}
	signer, err := ssh.ParsePrivateKey(keyMaterial)
	if err != nil {
		fail(fmt.Sprintf("credential error: %v", err))
		return
	}

	shell.transition(SHELL_STATE_CONNECTING)
	client, err := dialRemote(record, signer, SHELL_CONNECT_TIMEOUT)
	if err != nil {
		fail(fmt.Sprintf("connection error: %v", err))
		return
	}
	if !shell.attachClient(client) {
		// client disconnected mid-dial
		client.Close()
		return
	}

	session, err := client.NewSession()
	if err != nil {
		fail(fmt.Sprintf("shell error: %v", err))
		return
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("xterm-256color", 24, 80, modes); err != nil {
		fail(fmt.Sprintf("shell error: %v", err))
		return
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		fail(fmt.Sprintf("shell error: %v", err))
		return
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		fail(fmt.Sprintf("shell error: %v", err))
		return
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		fail(fmt.Sprintf("shell error: %v", err))
		return
	}
	if err := session.Shell(); err != nil {
		fail(fmt.Sprintf("shell error: %v", err))
		return
	}

	if !shell.attachSession(session, stdin) {
		session.Close()
		client.Close()
		return
	}

	gateway.emit(connection, &GatewayEvent{Type: EVENT_SHELL_READY})
	gateway.recordAudit(AUDIT_ACTION_SHELL_CONNECT, record, connection.RemoteAddress)
	gateway.Log.Printf("shell open: connection=%v server=%v (%v)\n",
		connection.ConnectionID, record.Name, record.address())

	go gateway.pumpShellOutput(connection, stdout)
	go gateway.pumpShellOutput(connection, stderr)
	go gateway.watchShellClose(connection, record, session)
}

// pumpShellOutput forwards remote bytes to the client in arrival
// order. One goroutine per stream; frame writes are serialized
// by the connection.
func (gateway *Gateway) pumpShellOutput(connection *ClientConnection, stream io.Reader) {
	buffer := make([]byte, 32*1024)
	for {
		count, err := stream.Read(buffer)
		if count > 0 {
			gateway.emit(connection, &GatewayEvent{Type: EVENT_SHELL_DATA, Data: string(buffer[:count])})
		}
		if err != nil {
			return
		}
	}
}

// watchShellClose waits for the remote side to finish, whatever
// the trigger (remote exit, transport error, or our own teardown
// on client disconnect), then settles the registry and audit log.
func (gateway *Gateway) watchShellClose(connection *ClientConnection, record *ServerRecord, session *ssh.Session) {
	err := session.Wait()
	gateway.Registry.DestroyShell(connection.ConnectionID)
	if err != nil && err != io.EOF {
		gateway.emit(connection, shellErrorEvent(fmt.Sprintf("session closed: %v", err)))
	} else {
		gateway.emit(connection, shellErrorEvent("session closed"))
	}
	gateway.recordAudit(AUDIT_ACTION_SHELL_DISCONNECT, record, connection.RemoteAddress)
	gateway.Log.Printf("shell closed: connection=%v server=%v\n", connection.ConnectionID, record.Name)
}
