package sshgateplus


import (
	"time"

	"golang.org/x/crypto/ssh"
)

const PROBE_TIMEOUT time.Duration = 5 * time.Second

type ProbeResult struct {
	Online		bool	`json:"online"`
	LatencyMs	*int64	`json:"latencyMs"`
}

// ProbeServer tests reachability with a short, connect-only
// handshake. No shell is opened. An unreachable or rejecting
// host is not an error, it is just offline.
func (gateway *Gateway) ProbeServer(serverID string) (*ProbeResult, error) {
	record, err := gateway.Store.GetServer(serverID)
	if err != nil {
		return nil, err
	}
	keyMaterial, err := gateway.Vault.Decrypt(record.EncryptedPrivateKey)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(keyMaterial)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	client, err := dialRemote(record, signer, PROBE_TIMEOUT)
	if err != nil {
		return &ProbeResult{Online: false}, nil
	}
	latency := time.Since(start).Milliseconds()
	client.Close()
	return &ProbeResult{Online: true, LatencyMs: &latency}, nil
}
