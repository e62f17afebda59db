package bash

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// RunCommand executes a shell command.
// the command is killed when ctx is done.
func RunCommand(ctx context.Context, cmd string) ([]byte, error) {
	var stderr bytes.Buffer

	c := exec.CommandContext(ctx, "sh", "-c", cmd)
	c.Stderr = &stderr

	out, err := c.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%w: %s", err, msg)
		}
		return out, err
	}

	return out, nil
}

// Quote quotes s as a single shell word.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
