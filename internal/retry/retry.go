package retry

import (
	"context"
	"errors"
	"time"

	"github.com/roelfdiedericks/voxnote/internal/cancel"
	. "github.com/roelfdiedericks/voxnote/internal/logging"
	"github.com/roelfdiedericks/voxnote/internal/types"
)

// Policy bounds retries per class. Delay for retry n is Base*2^n capped at
// the class ceiling.
type Policy struct {
	MaxRateLimited int
	MaxServer      int
	MaxNetwork     int
	Base           time.Duration
	RateLimitCap   time.Duration
	ServerCap      time.Duration

	// Sleep waits between attempts; nil uses cancel.Sleep.
	Sleep func(ctx context.Context, tok cancel.Token, d time.Duration) error
}

// DefaultPolicy returns the standard retry bounds.
func DefaultPolicy() Policy {
	return Policy{
		MaxRateLimited: 3,
		MaxServer:      2,
		MaxNetwork:     2,
		Base:           time.Second,
		RateLimitCap:   30 * time.Second,
		ServerCap:      20 * time.Second,
	}
}

// MaxRetries returns the retry budget for a class.
func (p Policy) MaxRetries(c Class) int {
	switch c {
	case ClassRateLimited:
		return p.MaxRateLimited
	case ClassServerError:
		return p.MaxServer
	case ClassTransientNetwork:
		return p.MaxNetwork
	default:
		return 0
	}
}

// Delay returns the backoff before retry number n (1-based) of class c.
func (p Policy) Delay(c Class, n int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = time.Second
	}
	ceiling := p.ServerCap
	if c == ClassRateLimited {
		ceiling = p.RateLimitCap
	}

	d := base
	for i := 0; i < n; i++ {
		d *= 2
		if ceiling > 0 && d >= ceiling {
			return ceiling
		}
	}
	return d
}

// Attempt describes one failed try inside Do.
type Attempt struct {
	Number int // 1-based attempt that failed
	Class  Class
	Delay  time.Duration
	Err    error
}

// Do runs fn until it succeeds, fails with a non-retryable class, or the
// class budget runs out. The token is checked before every attempt and every
// sleep; cancellation always wins over the provider error.
func Do[T any](ctx context.Context, tok cancel.Token, p Policy, op string, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	sleep := p.Sleep
	if sleep == nil {
		sleep = cancel.Sleep
	}

	used := make(map[Class]int)
	for attempt := 1; ; attempt++ {
		if err := cancel.Check(ctx, tok); err != nil {
			return zero, err
		}

		result, err := fn(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				L_info("retry: succeeded after retries", "op", op, "attempts", attempt)
			}
			return result, nil
		}
		if cerr := cancel.Check(ctx, tok); cerr != nil {
			return zero, cerr
		}

		class := Classify(err)
		if !class.Retryable() {
			L_debug("retry: not retryable", "op", op, "attempt", attempt, "error", err)
			return zero, err
		}

		used[class]++
		if used[class] > p.MaxRetries(class) {
			L_warn("retry: giving up", "op", op, "class", class, "attempts", attempt, "error", err)
			return zero, exhausted(class, op, err)
		}

		delay := p.Delay(class, used[class])
		L_warn("retry: backing off", "op", op, "class", class, "attempt", attempt, "delay", delay, "error", err)
		if err := sleep(ctx, tok, delay); err != nil {
			return zero, err
		}
	}
}

// exhausted converts the last error of a spent budget into its surfaced kind:
// rate limiting becomes quota_exceeded, everything else network.
func exhausted(c Class, op string, err error) error {
	kind := types.KindNetwork
	if c == ClassRateLimited {
		kind = types.KindQuotaExceeded
	}

	var e *types.Error
	if errors.As(err, &e) && e.Kind == kind {
		return err
	}
	out := types.Wrap(kind, op, err)
	if e != nil {
		out.Provider = e.Provider
		out.StatusCode = e.StatusCode
	}
	return out
}
