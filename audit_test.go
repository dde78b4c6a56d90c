package sshgateplus

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestFileAuditRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	recorder := MakeNewFileAuditRecorder(path)

	records := []*AuditRecord{
		{Action: AUDIT_ACTION_SHELL_CONNECT, ServerID: "a", ServerName: "alpha", RemoteAddress: "10.0.0.9:4242", Timestamp: 1700000000},
		{Action: AUDIT_ACTION_SHELL_DISCONNECT, ServerID: "a", ServerName: "alpha", RemoteAddress: "10.0.0.9:4242", Timestamp: 1700000060},
	}
	for _, record := range records {
		if err := recorder.Record(record); err != nil {
			t.Fatalf("Record(%v) = %v, want no error", record.Action, err)
		}
	}

	fd, err := os.Open(path)
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	defer fd.Close()

	scanner := bufio.NewScanner(fd)
	index := 0
	for scanner.Scan() {
		var parsed AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &parsed); err != nil {
			t.Fatalf("audit line %v is not json: %v", index, err)
		}
		if parsed != *records[index] {
			t.Fatalf("audit line %v = %+v, want %+v", index, parsed, *records[index])
		}
		index++
	}
	if index != len(records) {
		t.Fatalf("audit log has %v lines, want %v", index, len(records))
	}
}
