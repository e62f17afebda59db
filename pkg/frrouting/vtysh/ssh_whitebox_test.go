package vtysh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const neighborsJSON = `{"default": {"vrfId": 0, "vrfName": "default", "192.0.2.1": {"remoteAs": 65001, "bgpState": "Established"}}}`

// _fakeSSHServer accepts password auth for frr/secret and answers every exec request with output.
type _fakeSSHServer struct {
	addr     string
	hostKey  ssh.PublicKey
	commands chan string
}

func _newFakeSSHServer(t *testing.T, output string) *_fakeSSHServer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	config := &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if meta.User() == "frr" && string(password) == "secret" {
				return nil, nil
			}
			return nil, fmt.Errorf("access denied for %s", meta.User())
		},
	}
	config.AddHostKey(signer)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	s := &_fakeSSHServer{
		addr:     l.Addr().String(),
		hostKey:  signer.PublicKey(),
		commands: make(chan string, 8),
	}

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go s.serve(conn, config, output)
		}
	}()

	return s
}

func (s *_fakeSSHServer) serve(conn net.Conn, config *ssh.ServerConfig, output string) {
	_, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		conn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			_ = newChan.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		go func() {
			defer ch.Close()
			for req := range requests {
				if req.Type != "exec" {
					_ = req.Reply(false, nil)
					continue
				}
				var payload struct{ Command string }
				_ = ssh.Unmarshal(req.Payload, &payload)
				s.commands <- payload.Command
				_ = req.Reply(true, nil)

				_, _ = ch.Write([]byte(output))
				status := make([]byte, 4)
				binary.BigEndian.PutUint32(status, 0)
				_, _ = ch.SendRequest("exit-status", false, status)
				return
			}
		}()
	}
}

// target returns a Target pointing at the server with a known_hosts file trusting it.
func (s *_fakeSSHServer) target(t *testing.T) Target {
	t.Helper()

	host, port, err := net.SplitHostPort(s.addr)
	require.NoError(t, err)

	knownHostsFile := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{knownhosts.Normalize(s.addr)}, s.hostKey)
	require.NoError(t, os.WriteFile(knownHostsFile, []byte(line+"\n"), 0o600))

	return Target{
		Hostname:       host,
		Username:       "frr",
		Password:       "secret",
		SSHPort:        port,
		KnownHostsFile: knownHostsFile,
	}
}

func TestShowBGPNeighbors_OverSSH(t *testing.T) {
	s := _newFakeSSHServer(t, neighborsJSON)
	c := _newConnector(s.target(t))

	neighbors, err := c.ShowBGPNeighbors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Established", neighbors["default"].Neighbors["192.0.2.1"].BGPState)
	assert.Equal(t, `'vtysh' -H /dev/null -c 'show bgp vrf all neighbors json'`, <-s.commands)
}

func TestShowBGPNeighbors_OverSSH_WrongPassword(t *testing.T) {
	s := _newFakeSSHServer(t, neighborsJSON)
	target := s.target(t)
	target.Password = "wrong"

	_, err := _newConnector(target).ShowBGPNeighbors(context.Background())
	assert.ErrorContains(t, err, "ssh handshake")
}

func TestShowBGPNeighbors_OverSSH_UnknownHostKey(t *testing.T) {
	s := _newFakeSSHServer(t, neighborsJSON)
	target := s.target(t)
	target.KnownHostsFile = filepath.Join(t.TempDir(), "empty_known_hosts")
	require.NoError(t, os.WriteFile(target.KnownHostsFile, nil, 0o600))

	_, err := _newConnector(target).ShowBGPNeighbors(context.Background())
	assert.ErrorContains(t, err, "ssh handshake")
}

func TestClientConfig_NoCredentials(t *testing.T) {
	knownHostsFile := filepath.Join(t.TempDir(), "known_hosts")
	require.NoError(t, os.WriteFile(knownHostsFile, nil, 0o600))
	t.Setenv("HOME", t.TempDir())

	_, err := Target{Hostname: "rt1.example.net", Username: "frr", KnownHostsFile: knownHostsFile}.clientConfig()
	assert.ErrorContains(t, err, "no ssh credentials")
}

func TestClientConfig_MissingIdentityFile(t *testing.T) {
	knownHostsFile := filepath.Join(t.TempDir(), "known_hosts")
	require.NoError(t, os.WriteFile(knownHostsFile, nil, 0o600))

	_, err := Target{
		Hostname:       "rt1.example.net",
		IdentityFile:   filepath.Join(t.TempDir(), "id_missing"),
		KnownHostsFile: knownHostsFile,
	}.clientConfig()
	assert.ErrorContains(t, err, "failed to read identity file")
}

func TestTarget_Address(t *testing.T) {
	assert.Equal(t, "rt1.example.net:22", Target{Hostname: "rt1.example.net"}.address())
	assert.Equal(t, "[2001:db8::1]:2222", Target{Hostname: "2001:db8::1", SSHPort: "2222"}.address())
}
