//go:build !linux && !windows

package threadid

// Current returns 0: thread ids are not available on this platform.
func Current() int64 {
	return 0
}
