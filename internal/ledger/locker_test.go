package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestKeyedLocker_SerializesSameKey(t *testing.T) {
	l := newKeyedLocker()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "001")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxSeen)
	}
	if n := l.size(); n != 0 {
		t.Fatalf("expected idle locks to be reclaimed, %d left", n)
	}
}

func TestKeyedLocker_ContextCancelled(t *testing.T) {
	l := newKeyedLocker()
	unlock, err := l.Lock(context.Background(), "001")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "001"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestKeyedLocker_DistinctKeysIndependent(t *testing.T) {
	l := newKeyedLocker()
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "001")
	if err != nil {
		t.Fatalf("lock a: %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "002")
	if err != nil {
		t.Fatalf("lock b should not wait on a: %v", err)
	}
	unlockB()
}

func TestKeyedLocker_LockAllDeduplicates(t *testing.T) {
	l := newKeyedLocker()
	unlock, err := l.LockAll(context.Background(), "002", "001", "002")
	if err != nil {
		t.Fatalf("lock all: %v", err)
	}
	if n := l.size(); n != 2 {
		t.Fatalf("expected 2 held keys, got %d", n)
	}
	unlock()
	unlock()
	if n := l.size(); n != 0 {
		t.Fatalf("expected all keys released, %d left", n)
	}
}
