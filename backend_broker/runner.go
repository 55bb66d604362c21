package backend_broker

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// Runner executes one shell script line through the elevated broker.
type Runner interface {
	Run(ctx context.Context, script string) ([]byte, error)
}

// shellRunner prefixes each script with a broker argv, "su -c" by default. A
// Shizuku-style helper is the same thing with a different prefix.
type shellRunner struct {
	argv []string
}

func NewShellRunner(argv ...string) Runner {
	if len(argv) == 0 {
		argv = []string{"su", "-c"}
	}
	return &shellRunner{argv: argv}
}

func (r *shellRunner) Run(ctx context.Context, script string) ([]byte, error) {
	args := append(append([]string{}, r.argv[1:]...), script)
	cmd := exec.CommandContext(ctx, r.argv[0], args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return stdout.Bytes(), fmt.Errorf("broker command failed: %w (%s)", err, bytes.TrimSpace(stderr.Bytes()))
		}
		return stdout.Bytes(), fmt.Errorf("broker command failed: %w", err)
	}
	return stdout.Bytes(), nil
}
