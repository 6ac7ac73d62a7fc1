//go:build linux

package threadid

import "golang.org/x/sys/unix"

// Current returns the id of the calling OS thread.
func Current() int64 {
	return int64(unix.Gettid())
}
