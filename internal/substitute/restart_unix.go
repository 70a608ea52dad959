//go:build unix

package substitute

import "syscall"

func reexec(exe string, args, env []string) error {
	return syscall.Exec(exe, args, env)
}
