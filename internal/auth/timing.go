package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds configuration for timing attack prevention
type TimingConfig struct {
	BaseDelayMs    int  // Base delay in milliseconds
	RandomDelayMs  int  // Random delay range in milliseconds
	DelayOnSuccess bool // If true, delay even on successful login
}

// TimingDelay pads failed logins so that an unknown username and a wrong
// password take about the same time.
type TimingDelay struct {
	config TimingConfig
	sleep  func(time.Duration)
}

// TimingOption customises a TimingDelay
type TimingOption func(*TimingDelay)

// WithSleeper replaces time.Sleep, mainly so tests can observe the padding
func WithSleeper(sleep func(time.Duration)) TimingOption {
	return func(td *TimingDelay) {
		if sleep != nil {
			td.sleep = sleep
		}
	}
}

// NewTimingDelay creates a new TimingDelay instance
func NewTimingDelay(config TimingConfig, opts ...TimingOption) *TimingDelay {
	td := &TimingDelay{
		config: config,
		sleep:  time.Sleep,
	}
	for _, opt := range opts {
		opt(td)
	}
	return td
}

// cryptoRandIntn returns a secure random number in [0, max)
func cryptoRandIntn(max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0, err
	}

	return int(binary.BigEndian.Uint64(randomBytes) % uint64(max)), nil
}

func (td *TimingDelay) target() time.Duration {
	delay := time.Duration(td.config.BaseDelayMs) * time.Millisecond
	if td.config.RandomDelayMs > 0 {
		if n, err := cryptoRandIntn(td.config.RandomDelayMs); err == nil {
			delay += time.Duration(n) * time.Millisecond
		}
	}
	return delay
}

// Wait sleeps for base + random delay on failure (or always, with DelayOnSuccess)
func (td *TimingDelay) Wait(success bool) {
	if td == nil || (success && !td.config.DelayOnSuccess) {
		return
	}
	td.sleep(td.target())
}

// WaitFrom pads the time since startTime up to the target delay
func (td *TimingDelay) WaitFrom(startTime time.Time, success bool) {
	if td == nil || (success && !td.config.DelayOnSuccess) {
		return
	}
	if remaining := td.target() - time.Since(startTime); remaining > 0 {
		td.sleep(remaining)
	}
}
