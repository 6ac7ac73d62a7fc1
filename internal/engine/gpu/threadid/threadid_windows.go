//go:build windows

package threadid

import "golang.org/x/sys/windows"

// Current returns the id of the calling OS thread.
func Current() int64 {
	return int64(windows.GetCurrentThreadId())
}
