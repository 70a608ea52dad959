//go:build !unix

package substitute

import (
	"os"
	"os/exec"
)

// reexec starts a detached copy and exits; non-unix platforms have no exec(2).
func reexec(exe string, args, env []string) error {
	cmd := exec.Command(exe, args[1:]...)
	cmd.Env = env
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}
	osExit(ExitCodeRestart)
	return nil
}
