// Package cancel provides the cooperative cancellation token threaded through
// every provider call. A token never interrupts work; callers poll it at
// suspension points (before network I/O, between chunks, before retry sleeps).
package cancel

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/roelfdiedericks/voxnote/internal/types"
)

// PollInterval is how often blocking helpers re-check a token.
var PollInterval = 50 * time.Millisecond

// Token wraps a cancellation predicate with an identity. The zero value is
// never cancelled.
type Token struct {
	id   string
	pred func() bool
}

// New creates a token backed by pred.
func New(pred func() bool) Token {
	return Token{id: uuid.NewString(), pred: pred}
}

// Never returns a token that is never cancelled.
func Never() Token {
	return Token{id: uuid.NewString()}
}

// Cancelled returns a token whose predicate is always true.
func Cancelled() Token {
	return Token{id: uuid.NewString(), pred: func() bool { return true }}
}

// FromContext returns a token that reports cancelled once ctx is done.
func FromContext(ctx context.Context) Token {
	return New(func() bool { return ctx.Err() != nil })
}

// ID returns the token identity.
func (t Token) ID() string {
	return t.id
}

// IsCancelled polls the predicate.
func (t Token) IsCancelled() bool {
	return t.pred != nil && t.pred()
}

// Err returns types.ErrCancelled when the token is cancelled, else nil.
func (t Token) Err() error {
	if t.IsCancelled() {
		return types.ErrCancelled
	}
	return nil
}

// Sleep waits for d, returning types.ErrCancelled as soon as the token or
// ctx is observed cancelled.
func Sleep(ctx context.Context, tok Token, d time.Duration) error {
	if err := tok.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	tick := time.NewTicker(PollInterval)
	defer tick.Stop()

	for {
		select {
		case <-timer.C:
			return tok.Err()
		case <-ctx.Done():
			return types.ErrCancelled
		case <-tick.C:
			if tok.IsCancelled() {
				return types.ErrCancelled
			}
		}
	}
}

// Context derives a context that is cancelled when tok flips, so in-flight
// HTTP requests are aborted at the network layer. Call the returned
// CancelFunc to release the watcher goroutine.
func Context(parent context.Context, tok Token) (context.Context, context.CancelFunc) {
	ctx, cancelFn := context.WithCancel(parent)
	if tok.pred == nil {
		return ctx, cancelFn
	}
	if tok.IsCancelled() {
		cancelFn()
		return ctx, cancelFn
	}

	go func() {
		tick := time.NewTicker(PollInterval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				if tok.IsCancelled() {
					cancelFn()
					return
				}
			}
		}
	}()
	return ctx, cancelFn
}

// Check returns types.ErrCancelled if either ctx or tok is cancelled.
func Check(ctx context.Context, tok Token) error {
	if tok.IsCancelled() || ctx.Err() != nil {
		return types.ErrCancelled
	}
	return nil
}
