package sshgateplus

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileServerStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")
	contents := `{"servers": [
		{"id": "a", "name": "alpha", "host": "10.0.0.1", "port": 22, "username": "root", "encryptedPrivateKey": "xxx"},
		{"id": "b", "name": "bravo", "host": "10.0.0.2", "username": "admin", "encryptedPrivateKey": "yyy"}
	]}`
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	store := MakeNewFileServerStore(path)

	record, err := store.GetServer("a")
	if err != nil {
		t.Fatalf(`GetServer("a") = %v, want no error`, err)
	}
	if record.Name != "alpha" || record.address() != "10.0.0.1:22" {
		t.Fatalf(`GetServer("a") = %+v, want alpha at 10.0.0.1:22`, record)
	}

	// port defaults to 22 when the record omits it
	record, err = store.GetServer("b")
	if err != nil {
		t.Fatalf(`GetServer("b") = %v, want no error`, err)
	}
	if record.address() != "10.0.0.2:22" {
		t.Fatalf(`GetServer("b").address() = %q, want 10.0.0.2:22`, record.address())
	}

	if _, err := store.GetServer("missing"); err != ErrServerNotFound {
		t.Fatalf(`GetServer("missing") = %v, want ErrServerNotFound`, err)
	}

	records, err := store.ListServers()
	if err != nil || len(records) != 2 {
		t.Fatalf("ListServers() = %v records, %v, want 2 and no error", len(records), err)
	}
}

func TestFileServerStoreMissingFile(t *testing.T) {
	store := MakeNewFileServerStore(filepath.Join(t.TempDir(), "nope.json"))

	records, err := store.ListServers()
	if err != nil {
		t.Fatalf("ListServers() on missing file = %v, want no error", err)
	}
	if len(records) != 0 {
		t.Fatalf("ListServers() on missing file = %v records, want 0", len(records))
	}
	if _, err := store.GetServer("a"); err != ErrServerNotFound {
		t.Fatalf(`GetServer("a") on missing file = %v, want ErrServerNotFound`, err)
	}
}

func TestFileServerStoreMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")
	if err := os.WriteFile(path, []byte("{nonsense"), 0600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	store := MakeNewFileServerStore(path)
	if _, err := store.ListServers(); err == nil {
		t.Fatalf("ListServers() on malformed file succeeded, want an error")
	}
}

func TestMemoryServerStore(t *testing.T) {
	store := MakeNewMemoryServerStore()
	store.AddServer(&ServerRecord{ID: "a", Name: "alpha"})

	if record, err := store.GetServer("a"); err != nil || record.Name != "alpha" {
		t.Fatalf(`GetServer("a") = %v, %v, want the alpha record`, record, err)
	}
	if _, err := store.GetServer("b"); err != ErrServerNotFound {
		t.Fatalf(`GetServer("b") = %v, want ErrServerNotFound`, err)
	}
}
