//go:build release

package gpu

const ownerThreadChecks = false
