//go:build linux

package delivery

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// openObject opens name for reading. With noAtime set the file is opened
// with O_NOATIME so crawler reads leave access times alone; the kernel
// refuses that flag with EPERM for files the process does not own, in which
// case a plain open is used.
func openObject(name string, noAtime bool) (*os.File, error) {
	if noAtime {
		fd, err := unix.Open(name, unix.O_RDONLY|unix.O_CLOEXEC|unix.O_NOATIME, 0)
		if err == nil {
			return os.NewFile(uintptr(fd), name), nil
		}
		if !errors.Is(err, unix.EPERM) {
			return nil, &os.PathError{Op: "open", Path: name, Err: err}
		}
	}
	return os.Open(name)
}
