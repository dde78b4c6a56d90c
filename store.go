package sshgateplus


import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
)

var ErrServerNotFound = errors.New("server not found")

/*
A ServerRecord is one stored SSH host. The gateway only ever
reads records; whatever dashboard owns the store handles
creation and editing. EncryptedPrivateKey is a Vault
ciphertext and is never sent to a browser.
*/
type ServerRecord struct {
	ID					string	`json:"id"`
	Name				string	`json:"name"`
	Host				string	`json:"host"`
	Port				int		`json:"port"`
	Username			string	`json:"username"`
	EncryptedPrivateKey	string	`json:"encryptedPrivateKey"`
}

func (record *ServerRecord) address() string {
	port := record.Port
	if port <= 0 {
		port = 22
	}
	return record.Host + ":" + strconv.Itoa(port)
}

// ServerStore is the boundary to the dashboard's record storage.
type ServerStore interface {
	GetServer(id string) (*ServerRecord, error)
	ListServers() ([]*ServerRecord, error)
}

// FileServerStore reads records from a JSON file of the shape
// {"servers": [...]}. The file is re-read on every lookup so a
// dashboard process can edit it underneath a running gateway.
type FileServerStore struct {
	Path	string
	mutex	sync.Mutex
}

type serverFile struct {
	Servers []*ServerRecord `json:"servers"`
}

func MakeNewFileServerStore(path string) *FileServerStore {
	return &FileServerStore{Path: path}
}

func (store *FileServerStore) load() (*serverFile, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	data, err := os.ReadFile(store.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return &serverFile{Servers: []*ServerRecord{}}, nil
		}
		return nil, err
	}
	var parsed serverFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse server file %v: %w", store.Path, err)
	}
	if parsed.Servers == nil {
		parsed.Servers = []*ServerRecord{}
	}
	return &parsed, nil
}

func (store *FileServerStore) GetServer(id string) (*ServerRecord, error) {
	parsed, err := store.load()
	if err != nil {
		return nil, err
	}
	for _, record := range parsed.Servers {
		if record.ID == id {
			return record, nil
		}
	}
	return nil, ErrServerNotFound
}

func (store *FileServerStore) ListServers() ([]*ServerRecord, error) {
	parsed, err := store.load()
	if err != nil {
		return nil, err
	}
	return parsed.Servers, nil
}

// MemoryServerStore holds records in memory. Used by tests and
// by embedders that already have their own persistence.
type MemoryServerStore struct {
	mutex	sync.Mutex
	servers	map[string]*ServerRecord
}

func MakeNewMemoryServerStore() *MemoryServerStore {
	return &MemoryServerStore{servers: map[string]*ServerRecord{}}
}

func (store *MemoryServerStore) AddServer(record *ServerRecord) {
	store.mutex.Lock()
	store.servers[record.ID] = record
	store.mutex.Unlock()
}

func (store *MemoryServerStore) GetServer(id string) (*ServerRecord, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if record, ok := store.servers[id]; ok {
		return record, nil
	}
	return nil, ErrServerNotFound
}

func (store *MemoryServerStore) ListServers() ([]*ServerRecord, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	records := make([]*ServerRecord, 0, len(store.servers))
	for _, record := range store.servers {
		records = append(records, record)
	}
	return records, nil
}
