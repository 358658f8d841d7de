package launch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/google/shlex"

	"github.com/csheth/citejump/internal/logger"
)

// Placeholder is replaced by the navigation address in exec templates.
const Placeholder = "{address}"

// PrintSpawner writes the address instead of starting anything.
type PrintSpawner struct {
	W io.Writer
}

func (p PrintSpawner) Spawn(_ context.Context, address string) error {
	w := p.W
	if w == nil {
		w = os.Stdout
	}
	_, err := fmt.Fprintln(w, address)
	return err
}

// ExecSpawner runs a command template such as
// "tmux new-window citejump view {address}". The viewer outlives the call.
type ExecSpawner struct {
	Template string
	Dir      string
	Env      []string
	Logger   logger.Logger
}

// Command expands the template for address. The address is appended as the
// final argument when the template has no placeholder.
func (e ExecSpawner) Command(address string) ([]string, error) {
	args, err := shlex.Split(e.Template)
	if err != nil {
		return nil, fmt.Errorf("parse exec template: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("exec template is empty")
	}
	substituted := false
	for i, arg := range args {
		if strings.Contains(arg, Placeholder) {
			args[i] = strings.ReplaceAll(arg, Placeholder, address)
			substituted = true
		}
	}
	if !substituted {
		args = append(args, address)
	}
	return args, nil
}

func (e ExecSpawner) Spawn(_ context.Context, address string) error {
	args, err := e.Command(address)
	if err != nil {
		return err
	}
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = e.Dir
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", args[0], err)
	}
	log := logger.Component(e.Logger, "spawn")
	log.Debug("viewer started", "command", args[0], "pid", cmd.Process.Pid)
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Warn("viewer exited", "command", args[0], "error", err)
		}
	}()
	return nil
}
