package vtysh

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const defaultSSHPort = "22"

// defaultIdentityFiles are tried in ~/.ssh when the target has no credentials.
var defaultIdentityFiles = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

// clientConfig returns the ssh client config of the target.
// the host key must be in the known hosts file.
func (t Target) clientConfig() (*ssh.ClientConfig, error) {
	home, _ := os.UserHomeDir()

	knownHostsFile := t.KnownHostsFile
	if knownHostsFile == "" {
		knownHostsFile = filepath.Join(home, ".ssh", "known_hosts")
	}
	hostKeyCallback, err := knownhosts.New(knownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read known hosts %s: %w", knownHostsFile, err)
	}

	auth := make([]ssh.AuthMethod, 0, 2)

	identityFiles := make([]string, 0, len(defaultIdentityFiles))
	if t.IdentityFile != "" {
		identityFiles = append(identityFiles, t.IdentityFile)
	} else if t.Password == "" && home != "" {
		for _, name := range defaultIdentityFiles {
			identityFiles = append(identityFiles, filepath.Join(home, ".ssh", name))
		}
	}

	signers := make([]ssh.Signer, 0, len(identityFiles))
	for _, path := range identityFiles {
		key, err := os.ReadFile(path)
		if os.IsNotExist(err) && t.IdentityFile == "" {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read identity file %s: %w", path, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse identity file %s: %w", path, err)
		}
		signers = append(signers, signer)
	}
	if len(signers) > 0 {
		auth = append(auth, ssh.PublicKeys(signers...))
	}
	if t.Password != "" {
		auth = append(auth, ssh.Password(t.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("no ssh credentials for %s", t.Hostname)
	}

	return &ssh.ClientConfig{
		User:            t.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
	}, nil
}

func (t Target) address() string {
	port := t.SSHPort
	if port == "" {
		port = defaultSSHPort
	}
	return net.JoinHostPort(t.Hostname, port)
}

// runSSHCommand runs cmd on the target and returns its stdout.
// the connection is closed when ctx is done.
func runSSHCommand(ctx context.Context, t Target, cmd string) ([]byte, error) {
	config, err := t.clientConfig()
	if err != nil {
		return nil, err
	}

	addr := t.address()
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			client.Close()
		case <-done:
		}
	}()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to open ssh session on %s: %w", addr, err)
	}
	defer session.Close()

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	session.Stdout = stdout
	session.Stderr = stderr

	if err := session.Run(cmd); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return stdout.Bytes(), nil
}
