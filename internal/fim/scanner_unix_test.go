//go:build unix

package fim_test

import "syscall"

func mkfifo(path string) error {
	return syscall.Mkfifo(path, 0644)
}
