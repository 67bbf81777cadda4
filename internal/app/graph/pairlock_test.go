package graph

import (
	"sync"
	"testing"
)

func TestPairKeyIsUnordered(t *testing.T) {
	if PairKey("a", "b") != PairKey("b", "a") {
		t.Fatal("pair key depends on argument order")
	}
	if PairKey("a", "b") == PairKey("a", "c") {
		t.Fatal("distinct pairs share a key")
	}
}

func TestPairLocksSerializeAndRelease(t *testing.T) {
	locks := newPairLocks()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "x", "y"
			if i%2 == 0 {
				a, b = b, a
			}
			unlock := locks.lock(a, b)
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}(i)
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("%d goroutines held the same pair lock", maxSeen)
	}
	if locks.size() != 0 {
		t.Fatalf("%d pair locks leaked", locks.size())
	}
}
