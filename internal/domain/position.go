package domain

import (
	"math"
	"time"
)

// Positions travel on the wire as fractional seconds.

// EncodePosition converts a playback position to its wire form.
func EncodePosition(d time.Duration) float64 {
	return d.Seconds()
}

// DecodePosition converts a wire position back to a duration. Negative and
// non-finite values decode to zero.
func DecodePosition(sec float64) time.Duration {
	if sec <= 0 || math.IsNaN(sec) || math.IsInf(sec, 0) {
		return 0
	}
	return time.Duration(sec * float64(time.Second))
}
