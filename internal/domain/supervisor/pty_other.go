//go:build !unix

package supervisor

import (
	"errors"
	"os"
	"os/exec"

	"github.com/creack/pty"
)

func startRawPTY(cmd *exec.Cmd, size *pty.Winsize) (*os.File, error) {
	return nil, errors.New("pseudo terminals are not supported on this platform")
}
