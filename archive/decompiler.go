package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Decompiler turns one module bytecode file into Move source.
type Decompiler interface {
	Decompile(ctx context.Context, bytecodePath string) ([]byte, error)
}

// CommandDecompiler runs an external decompiler binary as
// "<Path> --bytecode <file>" and captures its stdout.
type CommandDecompiler struct {
	Path string
}

// Decompile runs the decompiler to completion. A non-zero exit is an error
// carrying the exit code and stderr; stdout is discarded in that case.
func (d *CommandDecompiler) Decompile(ctx context.Context, bytecodePath string) ([]byte, error) {
	if d.Path == "" {
		return nil, errors.New("decompiler path is empty")
	}

	cmd := exec.CommandContext(ctx, d.Path, "--bytecode", bytecodePath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				return nil, fmt.Errorf("%s exited with code %d", d.Path, exitErr.ExitCode())
			}
			return nil, fmt.Errorf("%s exited with code %d: %s", d.Path, exitErr.ExitCode(), msg)
		}
		return nil, fmt.Errorf("failed to run %s: %w", d.Path, err)
	}
	return stdout.Bytes(), nil
}
