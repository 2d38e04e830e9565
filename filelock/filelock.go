// Package filelock provides the single exclusive, blocking advisory lock
// that serializes backup sessions across processes.
package filelock

import (
	"os"

	"golang.org/x/sys/unix"
)

// Lock holds an exclusive advisory lock on an open file descriptor. The
// zero value is not usable; construct with Acquire.
type Lock struct {
	fd int
}

// Acquire blocks until an exclusive lock on f can be taken. Because the
// system intentionally uses exclusive-only locking, there is no shared/read variant.
func Acquire(f *os.File) (*Lock, error) {
	fd := int(f.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return nil, err
	}
	return &Lock{fd: fd}, nil
}

// Release drops the lock. It does not close the underlying file
// descriptor; pairing the lock and the fd lifetime is the caller's
// responsibility.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	return unix.Flock(l.fd, unix.LOCK_UN)
}
