package handler

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// commandRunner abstracts external tool execution so handler variants can
// be tested without tmux or desktop automation tools installed.
type commandRunner interface {
	run(ctx context.Context, name string, args ...string) (string, error)
	runBytes(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner shells out to the real tools.
type execRunner struct{}

func (execRunner) run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := execRunner{}.runBytes(ctx, name, args...)
	return strings.TrimRight(string(out), "\n"), err
}

func (execRunner) runBytes(ctx context.Context, name string, args ...string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%s %s: %s", name, strings.Join(args, " "), msg)
	}
	return stdout.Bytes(), nil
}
