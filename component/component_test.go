package component_test

import (
	"context"
	"testing"
	"time"

	"github.com/backman-dev/minicomps/component"
)

func TestLock_ReentrantAcquireByToken(t *testing.T) {
	lock := component.NewLock()
	ctx, token := component.WithToken(context.Background())
	_ = ctx

	lock.Acquire(token)
	done := make(chan struct{})
	go func() {
		lock.Acquire(token) // same token: must not deadlock
		lock.Release(token)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reentrant Acquire with the same token deadlocked")
	}

	lock.Release(token)
}

func TestLock_DifferentTokensSerialize(t *testing.T) {
	lock := component.NewLock()
	_, tokenA := component.WithToken(context.Background())
	_, tokenB := component.WithToken(context.Background())

	lock.Acquire(tokenA)

	acquired := make(chan struct{})
	go func() {
		lock.Acquire(tokenB)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second token acquired the lock while the first still held it")
	case <-time.After(50 * time.Millisecond):
	}

	lock.Release(tokenA)

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second token never acquired the lock after the first released it")
	}

	lock.Release(tokenB)
}

func TestWithToken_ReusesExistingToken(t *testing.T) {
	ctx, token1 := component.WithToken(context.Background())
	ctx2, token2 := component.WithToken(ctx)

	if token1 != token2 {
		t.Fatal("WithToken minted a new token for a context that already carried one")
	}
	_ = ctx2
}

func TestWithToken_FreshContextGetsFreshToken(t *testing.T) {
	_, token1 := component.WithToken(context.Background())
	_, token2 := component.WithToken(context.Background())

	if token1 == token2 {
		t.Fatal("two independent contexts received the same token")
	}
}
