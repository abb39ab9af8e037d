//go:build unix

package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// startRawPTY starts cmd with stdin and stdout on a raw terminal. The child
// becomes a session leader, so the group signal helpers reach its
// descendants. cmd.Stderr is left as configured.
func startRawPTY(cmd *exec.Cmd, size *pty.Winsize) (*os.File, error) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, err
	}
	defer tty.Close()

	// Raw before start: a cooked terminal rewrites \n as \r\n
	if _, err := term.MakeRaw(int(tty.Fd())); err != nil {
		ptmx.Close()
		return nil, fmt.Errorf("raw mode: %w", err)
	}
	if err := pty.Setsize(ptmx, size); err != nil {
		ptmx.Close()
		return nil, fmt.Errorf("window size: %w", err)
	}

	cmd.Stdin = tty
	cmd.Stdout = tty
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}
	if err := cmd.Start(); err != nil {
		ptmx.Close()
		return nil, err
	}
	return ptmx, nil
}
