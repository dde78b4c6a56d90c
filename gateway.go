package sshgateplus


import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type LoggerInterface interface {
	Printf(format string, v ...any)
	Println(v ...any)
}

/*
A Gateway is the front door: it accepts one persistent web
socket per browser tab, demultiplexes inbound events to the
shell bridge or the file-transfer bridge for that connection,
and fans remote output back out.

A gateway owns its SessionRegistry; construct one gateway per
process (or several with separate registries, they do not
share state).
*/
type Gateway struct {
	Store		ServerStore
	Vault		*Vault
	Audit		AuditRecorder
	Registry	*SessionRegistry
	Log			LoggerInterface
	ListenAddr	string
	HTMLFolder	string
	mutex		sync.Mutex
	server		*http.Server
	active		bool
}

func MakeNewGateway(store ServerStore, vault *Vault) *Gateway {
	return &Gateway{
		Store:		store,
		Vault:		vault,
		Registry:	MakeNewSessionRegistry(),
		Log:		log.Default(),
		ListenAddr:	"0.0.0.0:8080",
	}
}

func (gateway *Gateway) originChecker(r *http.Request) bool {
	return true
	//TODO: verify Origin against the dashboard's host
}

// Handler builds the gateway's routes: the event socket, the
// read-only record listing, the liveness probe, and optionally
// a static folder for the dashboard itself.
func (gateway *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/gateway", gateway.socketHandler)
	mux.HandleFunc("/api/servers", gateway.serversHandler)
	mux.HandleFunc("/api/ping", gateway.pingHandler)
	if gateway.HTMLFolder != "" {
		mux.Handle("/", http.FileServer(http.Dir(gateway.HTMLFolder)))
	}
	return mux
}

func (gateway *Gateway) ListenAndServe() error {
	gateway.mutex.Lock()
	gateway.server = &http.Server{
		Handler: gateway.Handler(),
		Addr:    gateway.ListenAddr,
	}
	gateway.active = true
	server := gateway.server
	gateway.mutex.Unlock()
	gateway.Log.Printf("starting gateway web server on %v\n", gateway.ListenAddr)
	return server.ListenAndServe()
}

// Stop is safe from any goroutine and a no-op once stopped.
func (gateway *Gateway) Stop() {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	if gateway.active {
		gateway.active = false
		gateway.server.Close()
	}
}

// emit writes one event to the client. A write failure only gets
// logged: the read loop notices the dead socket and handles
// teardown, and nothing here may block a bridge.
func (gateway *Gateway) emit(connection *ClientConnection, event *GatewayEvent) {
	if err := connection.sendEvent(event); err != nil {
		gateway.Log.Println("error writing to web socket:", err)
	}
}

func (gateway *Gateway) socketHandler(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: gateway.originChecker,
	}
	socket, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		gateway.Log.Println("error during connection upgrade:", err)
		return
	}
	defer socket.Close()

	connectionID := uuid.NewString()
	connection := gateway.Registry.AddConnection(connectionID, r.RemoteAddr, socket)
	gateway.Log.Printf("new client connection %v from %v\n", connectionID, r.RemoteAddr)

	// Teardown is synchronous with disconnect: the shell dies
	// here, in-flight transfers are abandoned and their results
	// dropped by the dead socket.
	defer gateway.Registry.RemoveConnection(connectionID)

	for {
		_, message, err := socket.ReadMessage()
		if err != nil {
			break
		}
		event := &GatewayEvent{}
		if err := json.Unmarshal(message, event); err != nil {
			gateway.emit(connection, shellErrorEvent(fmt.Sprintf("malformed event: %v", err)))
			continue
		}
		gateway.dispatchEvent(connection, event)
	}
	gateway.Log.Printf("client connection %v closed\n", connectionID)
}

/*
dispatchEvent routes one inbound event. Shell input and resize
are applied inline so their relative order on the remote stream
matches arrival order; everything that dials a remote host runs
in its own goroutine so one connection's slow host never stalls
its other operations.
*/
func (gateway *Gateway) dispatchEvent(connection *ClientConnection, event *GatewayEvent) {
	switch event.Type {
	case EVENT_START_SHELL:
		if event.ServerID == "" {
			gateway.emit(connection, shellErrorEvent("start-shell requires a serverId"))
			return
		}
		go gateway.startShell(connection, event.ServerID)
	case EVENT_SHELL_INPUT:
		shell := gateway.Registry.activeShell(connection.ConnectionID)
		if shell == nil {
			return // no shell; keystrokes are dropped
		}
		if err := shell.writeInput(event.Data); err != nil {
			gateway.Log.Println("error writing shell input:", err)
		}
	case EVENT_SHELL_RESIZE:
		shell := gateway.Registry.activeShell(connection.ConnectionID)
		if shell != nil {
			shell.resize(event.Cols, event.Rows)
		}
	case EVENT_LIST_DIRECTORY:
		if event.ServerID == "" {
			gateway.emit(connection, listErrorEvent("list-directory requires a serverId"))
			return
		}
		go gateway.listDirectory(connection, event.ServerID, event.Path)
	case EVENT_DOWNLOAD_FILE:
		if event.ServerID == "" || event.RemotePath == "" {
			gateway.emit(connection, transferErrorEvent("download-file requires a serverId and remotePath"))
			return
		}
		go gateway.downloadFile(connection, event.ServerID, event.RemotePath)
	case EVENT_UPLOAD_FILE:
		if event.ServerID == "" || event.RemotePath == "" || event.Filename == "" {
			gateway.emit(connection, transferErrorEvent("upload-file requires a serverId, remotePath, and filename"))
			return
		}
		go gateway.uploadFile(connection, event.ServerID, event.RemotePath, event.Filename, event.Data)
	default:
		gateway.emit(connection, shellErrorEvent(fmt.Sprintf("unsupported event type: %v", event.Type)))
	}
}

// serverView is what the dashboard may see of a record: never
// the encrypted key.
type serverView struct {
	ID			string	`json:"id"`
	Name		string	`json:"name"`
	Host		string	`json:"host"`
	Port		int		`json:"port"`
	Username	string	`json:"username"`
}

func (gateway *Gateway) serversHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	records, err := gateway.Store.ListServers()
	if err != nil {
		gateway.Log.Println("error listing servers:", err)
		http.Error(w, "could not list servers", http.StatusInternalServerError)
		return
	}
	views := make([]serverView, 0, len(records))
	for _, record := range records {
		views = append(views, serverView{
			ID:       record.ID,
			Name:     record.Name,
			Host:     record.Host,
			Port:     record.Port,
			Username: record.Username,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(views); err != nil {
		gateway.Log.Println("error writing server list:", err)
	}
}

func (gateway *Gateway) pingHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	serverID := r.URL.Query().Get("id")
	result, err := gateway.ProbeServer(serverID)
	if err != nil {
		status := http.StatusBadRequest
		if err == ErrServerNotFound {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		gateway.Log.Println("error writing probe result:", err)
	}
}
