package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// PTYLauncher runs pipelines attached to a pseudo terminal, for binaries
// that only flush their output when stdout is a TTY. The terminal is raw, so
// output bytes pass through unchanged, and stderr stays on its own pipe.
type PTYLauncher struct {
	Binary string
	Args   ArgsFunc
	Cols   uint16
	Rows   uint16
}

// NewPTYLauncher creates a PTY launcher for binary
func NewPTYLauncher(binary string, args ArgsFunc) *PTYLauncher {
	return &PTYLauncher{Binary: binary, Args: args, Cols: 200, Rows: 50}
}

// Launch starts the binary on a new PTY
func (l *PTYLauncher) Launch(ctx context.Context, nodeID string, src Source) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	args := PassthroughArgs
	if l.Args != nil {
		args = l.Args
	}

	cmd := exec.Command(l.Binary, args(src)...)
	cmd.Env = append(os.Environ(), "TERM=dumb")

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	ptmx, err := startRawPTY(cmd, &pty.Winsize{Rows: l.Rows, Cols: l.Cols})
	if err != nil {
		return nil, fmt.Errorf("failed to start PTY: %w", err)
	}

	return &ptyProcess{cmd: cmd, ptmx: ptmx, stderr: stderr}, nil
}

type ptyProcess struct {
	cmd    *exec.Cmd
	ptmx   *os.File
	stderr io.ReadCloser
}

func (p *ptyProcess) PID() int               { return p.cmd.Process.Pid }
func (p *ptyProcess) Output() io.Reader      { return p.ptmx }
func (p *ptyProcess) Diagnostics() io.Reader { return p.stderr }
func (p *ptyProcess) Terminate() error       { return terminateGroup(p.cmd) }
func (p *ptyProcess) Kill() error            { return killGroup(p.cmd) }

func (p *ptyProcess) Wait() (int, error) {
	defer p.ptmx.Close()
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitCode(exitErr.ProcessState), nil
	}
	return -1, err
}
