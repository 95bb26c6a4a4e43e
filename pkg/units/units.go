// Package units has the binary size units used for cache and buffer sizes.
package units

const (
	Kb = 1 << (10 * (iota + 1))
	Mb
	Gb
)

// Megabytes converts a size given in megabytes on the command line to bytes.
func Megabytes(n int) int { return n * Mb }
