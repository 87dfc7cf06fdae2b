package matting

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// CommandModel pipes the image through an external program, e.g.
// `rembg i` reading PNG on stdin and writing PNG on stdout.
type CommandModel struct {
	argv []string
}

func NewCommandModel(argv []string) (*CommandModel, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("command backend needs a program")
	}
	return &CommandModel{argv: append([]string(nil), argv...)}, nil
}

func (m *CommandModel) Name() string {
	return "command:" + filepath.Base(m.argv[0])
}

func (m *CommandModel) Remove(ctx context.Context, png []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, m.argv[0], m.argv[1:]...)
	cmd.Stdin = bytes.NewReader(png)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxErrorSnippet {
			msg = msg[len(msg)-maxErrorSnippet:]
		}
		if msg == "" {
			return nil, fmt.Errorf("%s: %w", m.argv[0], err)
		}
		return nil, fmt.Errorf("%s: %w: %s", m.argv[0], err, msg)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%s: %w", m.argv[0], errEmptyOutput)
	}
	return stdout.Bytes(), nil
}
