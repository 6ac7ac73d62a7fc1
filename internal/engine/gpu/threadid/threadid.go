// Package threadid reports the calling OS thread. Goroutines migrate between
// threads unless they call runtime.LockOSThread, so the id is only meaningful
// on locked goroutines such as the render loop.
package threadid
