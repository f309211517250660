// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retry runs storage operations with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

var (
	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid retry config")

	// ErrExhausted wraps the last error once every attempt has failed.
	ErrExhausted = errors.New("retries exhausted")
)

// Config configures retry behavior with exponential backoff.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Default: 3
	MaxAttempts int `yaml:"max_attempts" validate:"gte=1"`

	// InitialBackoff is the wait before the first retry.
	// Default: 50ms
	InitialBackoff time.Duration `yaml:"initial_backoff" validate:"gt=0"`

	// MaxBackoff caps the wait between retries.
	// Default: 2s
	MaxBackoff time.Duration `yaml:"max_backoff" validate:"gtefield=InitialBackoff"`

	// BackoffFactor is the multiplier for exponential backoff.
	// Default: 2.0
	BackoffFactor float64 `yaml:"backoff_factor" validate:"gte=1"`

	// JitterFactor is the maximum jitter as a fraction of backoff (0-1).
	// Default: 0.2
	JitterFactor float64 `yaml:"jitter_factor" validate:"gte=0,lte=1"`
}

// DefaultConfig returns defaults suited to local disk and embedded stores.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		BackoffFactor:  2.0,
		JitterFactor:   0.2,
	}
}

// Validate checks if the retry configuration is valid.
func (c Config) Validate() error {
	switch {
	case c.MaxAttempts < 1,
		c.InitialBackoff <= 0,
		c.MaxBackoff < c.InitialBackoff,
		c.BackoffFactor < 1.0,
		c.JitterFactor < 0 || c.JitterFactor > 1:
		return ErrInvalidConfig
	}
	return nil
}

// Result contains the outcome of a retried operation.
type Result struct {
	// Attempts is the number of attempts made.
	Attempts int

	// TotalDuration is the total time spent including waits.
	TotalDuration time.Duration

	// LastError is the error from the last attempt (nil if successful).
	LastError error
}

// Func is an operation that can be retried.
type Func func(ctx context.Context, attempt int) error

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do executes fn with exponential backoff.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - config: Retry configuration. Invalid configs fall back to DefaultConfig.
//   - fn: The operation to execute and potentially retry.
//
// Outputs:
//   - Result: Statistics about the operation.
//   - error: nil on success; the permanent error unwrapped; ctx.Err() on
//     cancellation; otherwise an error wrapping both ErrExhausted and the
//     last failure.
//
// Example:
//
//	_, err := retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context, _ int) error {
//	    return store.Save(ctx, cp)
//	})
func Do(ctx context.Context, config Config, fn Func) (Result, error) {
	if config.Validate() != nil {
		config = DefaultConfig()
	}
	start := time.Now()
	result := Result{}
	backoff := config.InitialBackoff

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		if err := ctx.Err(); err != nil {
			result.LastError = err
			result.TotalDuration = time.Since(start)
			return result, err
		}

		err := fn(ctx, attempt)
		if err == nil {
			result.LastError = nil
			result.TotalDuration = time.Since(start)
			return result, nil
		}
		result.LastError = err

		var p *permanentError
		if errors.As(err, &p) {
			result.TotalDuration = time.Since(start)
			return result, p.err
		}

		if attempt == config.MaxAttempts {
			break
		}

		timer := time.NewTimer(calculateBackoff(backoff, config.JitterFactor))
		select {
		case <-ctx.Done():
			timer.Stop()
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(start)
			return result, ctx.Err()
		case <-timer.C:
		}

		backoff = nextBackoff(backoff, config.BackoffFactor, config.MaxBackoff)
	}

	result.TotalDuration = time.Since(start)
	return result, errors.Join(ErrExhausted, result.LastError)
}

// calculateBackoff applies jitter in [base*(1-j), base*(1+j)].
func calculateBackoff(base time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return base
	}
	jitter := (rand.Float64()*2 - 1) * jitterFactor
	return time.Duration(float64(base) * (1.0 + jitter))
}

func nextBackoff(current time.Duration, factor float64, max time.Duration) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		return max
	}
	return next
}
