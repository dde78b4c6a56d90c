package sshgateplus

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"net"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gliderlabs/ssh"
	"github.com/gorilla/websocket"
	"github.com/pkg/sftp"
	gossh "golang.org/x/crypto/ssh"
)

const testVaultSecret = "test_secret_key_32_chars_long!!!"
const testHostBanner = "welcome to the test host\r\n"

// generateTestKey makes a throwaway EC key pair: the PEM goes
// into an encrypted server record, the public key authorizes it
// on the test host.
func generateTestKey(t *testing.T) ([]byte, gossh.PublicKey) {
	t.Helper()
	const blockType = "EC PRIVATE KEY"
	pkey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate ec private key: %v", err)
	}
	byt, err := x509.MarshalECPrivateKey(pkey)
	if err != nil {
		t.Fatalf("marshal ec private key: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: byt})
	signer, err := gossh.ParsePrivateKey(pemBytes)
	if err != nil {
		t.Fatalf("parse generated private key: %v", err)
	}
	return pemBytes, signer.PublicKey()
}

// startTestHost runs an in-process SSH server that greets, then
// echoes shell input, and serves the local filesystem over the
// sftp subsystem. Returns its listen address.
func startTestHost(t *testing.T, authorized gossh.PublicKey) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen for test host: %v", err)
	}
	server := &ssh.Server{
		Handler: func(session ssh.Session) {
			io.WriteString(session, testHostBanner)
			io.Copy(session, session)
		},
		PublicKeyHandler: func(ctx ssh.Context, key ssh.PublicKey) bool {
			return ssh.KeysEqual(key, authorized)
		},
		SubsystemHandlers: map[string]ssh.SubsystemHandler{
			"sftp": func(session ssh.Session) {
				sftpServer, err := sftp.NewServer(session)
				if err != nil {
					return
				}
				defer sftpServer.Close()
				sftpServer.Serve()
			},
		},
	}
	go server.Serve(listener)
	t.Cleanup(func() { server.Close() })
	return listener.Addr().String()
}

type testGateway struct {
	gateway	*Gateway
	store	*MemoryServerStore
	vault	*Vault
	webURL	string
	wsURL	string
}

// makeTestGateway wires a full gateway against a live test host:
// one record "server-1" whose encrypted key the host accepts.
func makeTestGateway(t *testing.T) *testGateway {
	t.Helper()
	pemBytes, publicKey := generateTestKey(t)
	hostAddr := startTestHost(t, publicKey)
	host, portString, err := net.SplitHostPort(hostAddr)
	if err != nil {
		t.Fatalf("split test host address %v: %v", hostAddr, err)
	}
	port, err := strconv.Atoi(portString)
	if err != nil {
		t.Fatalf("parse test host port %v: %v", portString, err)
	}

	vault := MakeNewVault(testVaultSecret)
	ciphertext, err := vault.Encrypt(pemBytes)
	if err != nil {
		t.Fatalf("Encrypt(key) = %v, want no error", err)
	}
	store := MakeNewMemoryServerStore()
	store.AddServer(&ServerRecord{
		ID:                  "server-1",
		Name:                "test host",
		Host:                host,
		Port:                port,
		Username:            "tester",
		EncryptedPrivateKey: ciphertext,
	})

	gateway := MakeNewGateway(store, vault)
	webServer := httptest.NewServer(gateway.Handler())
	t.Cleanup(webServer.Close)

	return &testGateway{
		gateway: gateway,
		store:   store,
		vault:   vault,
		webURL:  webServer.URL,
		wsURL:   "ws" + strings.TrimPrefix(webServer.URL, "http") + "/gateway",
	}
}

func dialGateway(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect to websocket: %s", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event *GatewayEvent) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(event.ToJSON())); err != nil {
		t.Fatalf("Write to websocket failed: %s", err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) *GatewayEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Read from websocket failed: %s", err)
	}
	event := &GatewayEvent{}
	if err := json.Unmarshal(message, event); err != nil {
		t.Fatalf("gateway sent invalid json %q: %s", message, err)
	}
	return event
}

// waitForEventType reads until an event of the wanted type
// arrives, tolerating interleaved shell-data from a live shell.
func waitForEventType(t *testing.T, conn *websocket.Conn, eventType string) *GatewayEvent {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		event := readEvent(t, conn)
		if event.Type == eventType {
			return event
		}
		if event.Type == EVENT_SHELL_DATA {
			continue
		}
		t.Fatalf("expected %v event, got: %v", eventType, event.ToJSON())
	}
	t.Fatalf("no %v event within deadline", eventType)
	return nil
}

// waitForShellData accumulates shell-data until needle shows up,
// returning everything collected so far.
func waitForShellData(t *testing.T, conn *websocket.Conn, needle string) string {
	t.Helper()
	collected := ""
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		event := readEvent(t, conn)
		if event.Type != EVENT_SHELL_DATA {
			t.Fatalf("expected shell-data while waiting for %q, got: %v", needle, event.ToJSON())
		}
		collected += event.Data
		if strings.Contains(collected, needle) {
			return collected
		}
	}
	t.Fatalf("shell output never contained %q; got %q", needle, collected)
	return ""
}
