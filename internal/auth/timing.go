package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// FailureDelay pads failed authentication responses to a floor plus random
// jitter so unknown accounts, wrong passwords and locked accounts take
// similar time to answer.
type FailureDelay struct {
	floor  time.Duration
	jitter time.Duration
}

// NewFailureDelay creates a FailureDelay. A zero floor and jitter disables padding.
func NewFailureDelay(floor, jitter time.Duration) *FailureDelay {
	return &FailureDelay{floor: floor, jitter: jitter}
}

// cryptoRandIntn returns a secure random number in [0, max)
func cryptoRandIntn(max int64) int64 {
	if max <= 0 {
		return 0
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0
	}

	return int64(binary.BigEndian.Uint64(randomBytes) % uint64(max))
}

// Target returns the padded duration for one response
func (d *FailureDelay) Target() time.Duration {
	return d.floor + time.Duration(cryptoRandIntn(int64(d.jitter)))
}

// WaitFrom blocks until at least Target has elapsed since start, or ctx ends.
// Successful operations return immediately.
func (d *FailureDelay) WaitFrom(ctx context.Context, start time.Time, success bool) {
	if d == nil || success {
		return
	}

	remaining := d.Target() - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
