package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// ArgsFunc builds the argument list for a source
type ArgsFunc func(src Source) []string

// PassthroughArgs is the default ffmpeg contract: copy the video stream
// without re-encoding, drop audio and write MPEG-TS to stdout.
func PassthroughArgs(src Source) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-i", src.URI,
		"-c:v", "copy",
		"-an",
		"-f", "mpegts",
		"pipe:1",
	}
}

// ExecLauncher starts pipelines as child processes in their own process group
type ExecLauncher struct {
	Binary string
	Args   ArgsFunc
	Env    []string
	Dir    string
}

// NewExecLauncher creates a launcher for binary using PassthroughArgs
func NewExecLauncher(binary string) *ExecLauncher {
	return &ExecLauncher{Binary: binary, Args: PassthroughArgs}
}

// Launch starts the binary for src
func (l *ExecLauncher) Launch(ctx context.Context, nodeID string, src Source) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	args := PassthroughArgs
	if l.Args != nil {
		args = l.Args
	}

	cmd := exec.Command(l.Binary, args(src)...)
	cmd.Dir = l.Dir
	if len(l.Env) > 0 {
		cmd.Env = append(os.Environ(), l.Env...)
	}
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", l.Binary, err)
	}

	return &execProcess{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser
}

func (p *execProcess) PID() int               { return p.cmd.Process.Pid }
func (p *execProcess) Output() io.Reader      { return p.stdout }
func (p *execProcess) Diagnostics() io.Reader { return p.stderr }
func (p *execProcess) Terminate() error       { return terminateGroup(p.cmd) }
func (p *execProcess) Kill() error            { return killGroup(p.cmd) }

func (p *execProcess) Wait() (int, error) {
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
