// Package timeouts holds the deadlines handlers put on database work.
// Configure is called once at startup; the getters are safe for concurrent
// use.
package timeouts

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultShort  = 5 * time.Second  // single-document reads, token user lookups
	DefaultMedium = 10 * time.Second // listings, cascades, aggregates
)

var (
	short  atomic.Int64
	medium atomic.Int64
)

func init() {
	Reset()
}

// Short is the deadline for single-document operations.
func Short() time.Duration { return time.Duration(short.Load()) }

// Medium is the deadline for multi-document operations.
func Medium() time.Duration { return time.Duration(medium.Load()) }

// Configure replaces the deadlines. Non-positive values keep the current one.
func Configure(s, m time.Duration) {
	if s > 0 {
		short.Store(int64(s))
	}
	if m > 0 {
		medium.Store(int64(m))
	}
}

// Reset restores the defaults.
func Reset() {
	short.Store(int64(DefaultShort))
	medium.Store(int64(DefaultMedium))
}

// WithTimeout is context.WithTimeout whose cancel func logs op when the
// deadline was what ended it.
func WithTimeout(parent context.Context, d time.Duration, log *zap.Logger, op string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, d)
	return ctx, func() {
		if log != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Warn("operation timed out", zap.String("operation", op), zap.Duration("timeout", d))
		}
		cancel()
	}
}
