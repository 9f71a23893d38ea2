package cancel

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/roelfdiedericks/voxnote/internal/types"
)

func TestTokenPredicates(t *testing.T) {
	if Never().IsCancelled() {
		t.Error("Never() reported cancelled")
	}
	if !Cancelled().IsCancelled() {
		t.Error("Cancelled() reported not cancelled")
	}
	var zero Token
	if zero.IsCancelled() {
		t.Error("zero token reported cancelled")
	}
	if Never().ID() == Never().ID() {
		t.Error("tokens share an id")
	}
}

func TestTokenErr(t *testing.T) {
	if err := Never().Err(); err != nil {
		t.Fatalf("Never().Err() = %v", err)
	}
	err := Cancelled().Err()
	if !types.IsCancelled(err) {
		t.Fatalf("Cancelled().Err() = %v, want cancelled", err)
	}
}

func TestSleepCompletes(t *testing.T) {
	start := time.Now()
	if err := Sleep(context.Background(), Never(), 20*time.Millisecond); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Sleep returned early")
	}
}

func TestSleepShortCircuitsOnCancel(t *testing.T) {
	var flag atomic.Bool
	tok := New(flag.Load)

	go func() {
		time.Sleep(30 * time.Millisecond)
		flag.Store(true)
	}()

	start := time.Now()
	err := Sleep(context.Background(), tok, 10*time.Second)
	if !types.IsCancelled(err) {
		t.Fatalf("Sleep err = %v, want cancelled", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Sleep took %v after cancellation", elapsed)
	}
}

func TestSleepAlreadyCancelled(t *testing.T) {
	err := Sleep(context.Background(), Cancelled(), time.Hour)
	if !types.IsCancelled(err) {
		t.Fatalf("err = %v, want cancelled", err)
	}
}

func TestContextFollowsToken(t *testing.T) {
	var flag atomic.Bool
	ctx, stop := Context(context.Background(), New(flag.Load))
	defer stop()

	select {
	case <-ctx.Done():
		t.Fatal("context done before token flipped")
	default:
	}

	flag.Store(true)
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled after token flipped")
	}
}

func TestFromContext(t *testing.T) {
	ctx, cancelFn := context.WithCancel(context.Background())
	tok := FromContext(ctx)
	if tok.IsCancelled() {
		t.Fatal("token cancelled before context")
	}
	cancelFn()
	if !tok.IsCancelled() {
		t.Fatal("token not cancelled after context")
	}
}
