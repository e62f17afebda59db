package vtysh

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/sakura-internet/peering-session-controller/pkg/bash"
	"github.com/sakura-internet/peering-session-controller/pkg/frrouting/bgpd"
)

const showBGPNeighborsCommand = "show bgp vrf all neighbors json"

// Target is where vtysh is executed.
// an empty Hostname (or "localhost") runs vtysh on this host, otherwise vtysh is run over ssh.
type Target struct {
	Hostname string
	Username string
	// Password and IdentityFile are the ssh credentials, both optional.
	Password     string
	IdentityFile string
	// SSHPort defaults to "22".
	SSHPort string
	// KnownHostsFile defaults to ~/.ssh/known_hosts.
	KnownHostsFile string
	// VtyshPath defaults to "vtysh".
	VtyshPath string
}

func (t Target) local() bool {
	return t.Hostname == "" || t.Hostname == "localhost"
}

func NewDefaultBGPdConnector(logger *slog.Logger, target Target) bgpd.BGPdConnector {
	return &VtyshBGPdConnector{Logger: logger, Target: target}
}

// VtyshBGPdConnector is a default implementation of BGPdConnector.
// this impl uses "vtysh" commands to interact with frrouting bgpd.
type VtyshBGPdConnector struct {
	Logger *slog.Logger
	Target Target
}

// ShowBGPNeighbors implements BGPdConnector
func (c *VtyshBGPdConnector) ShowBGPNeighbors(ctx context.Context) (bgpd.VRFNeighbors, error) {
	neighbors := bgpd.VRFNeighbors{}

	cmd := c.command(showBGPNeighborsCommand)
	c.Logger.Debug("execute command", "command", cmd, "host", c.Target.Hostname, "callerFn", "ShowBGPNeighbors")
	out, err := c.run(ctx, cmd)
	if err != nil {
		return neighbors, fmt.Errorf("failed to show bgp neighbors: %w", err)
	}

	if err := json.Unmarshal(out, &neighbors); err != nil {
		return neighbors, fmt.Errorf("failed to unmarshal to bgpd.VRFNeighbors: %w", err)
	}

	return neighbors, nil
}

// run runs the command locally or on the target over ssh.
func (c *VtyshBGPdConnector) run(ctx context.Context, cmd string) ([]byte, error) {
	if c.Target.local() {
		return bash.RunCommand(ctx, cmd)
	}
	return runSSHCommand(ctx, c.Target, cmd)
}

// command builds the shell command that runs the vtysh command.
func (c *VtyshBGPdConnector) command(vtyshCommand string) string {
	vtysh := c.Target.VtyshPath
	if vtysh == "" {
		vtysh = "vtysh"
	}
	return fmt.Sprintf("%s -H /dev/null -c %s", bash.Quote(vtysh), bash.Quote(vtyshCommand))
}
