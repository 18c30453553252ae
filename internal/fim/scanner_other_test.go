//go:build !unix

package fim_test

import "errors"

func mkfifo(string) error {
	return errors.New("fifos are not supported on this platform")
}
