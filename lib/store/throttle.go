// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// minimumBurst keeps the token bucket large enough that a single read
// of a typical buffer size never exceeds it.
const minimumBurst = 64 * 1024

// throttle limits transfer bandwidth with a token bucket where one
// token is one byte. A nil throttle does not limit.
type throttle struct {
	limiter *rate.Limiter
	burst   int
}

func newThrottle(bytesPerSecond int64) *throttle {
	if bytesPerSecond <= 0 {
		return nil
	}
	burst := max(int(bytesPerSecond), minimumBurst)
	return &throttle{
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
		burst:   burst,
	}
}

// reader wraps r so that reads wait for enough tokens to cover the
// bytes they return.
func (t *throttle) reader(ctx context.Context, r io.Reader) io.Reader {
	if t == nil {
		return r
	}
	return readerFunc(func(p []byte) (int, error) {
		if len(p) > t.burst {
			p = p[:t.burst]
		}
		n, err := r.Read(p)
		if n > 0 {
			if waitErr := t.limiter.WaitN(ctx, n); waitErr != nil {
				return n, waitErr
			}
		}
		return n, err
	})
}
