//go:build unix

package sandbox

import (
	"os/exec"
	"syscall"
)

// isolate puts the interpreter in its own process group so cancellation reaches every
// process the snippet spawned, not only the shell.
func isolate(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		return syscall.Kill(-c.Process.Pid, syscall.SIGKILL)
	}
}
