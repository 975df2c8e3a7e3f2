package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/aramb-dev/agentkit/internal/domain"
)

func results(id string) []domain.RetrievedChunk {
	return []domain.RetrievedChunk{{
		Chunk:     domain.Chunk{DocumentID: id, Namespace: "ns"},
		Distance:  0.5,
		Relevance: domain.Relevance(0.5),
	}}
}

func TestGetPut(t *testing.T) {
	c := New(10, true, nil)
	key := NewKey("ns", "query", 5)

	if _, ok := c.Get(key); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Put(key, results("a"))

	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected hit after put")
	}
	if got[0].DocumentID != "a" {
		t.Errorf("DocumentID = %q", got[0].DocumentID)
	}
}

func TestKeyNormalization(t *testing.T) {
	c := New(10, true, nil)
	c.Put(NewKey("ns", "  What Is Go?  ", 5), results("a"))

	if _, ok := c.Get(NewKey("ns", "what is go?", 5)); !ok {
		t.Error("trimmed, case-folded query should hit the same entry")
	}
	if _, ok := c.Get(NewKey("ns", "what is go?", 3)); ok {
		t.Error("different k must be a distinct key")
	}
	if _, ok := c.Get(NewKey("other", "what is go?", 5)); ok {
		t.Error("different namespace must be a distinct key")
	}
}

func TestLRUEviction(t *testing.T) {
	c := New(3, true, nil)

	for i := 0; i < 3; i++ {
		c.Put(NewKey("ns", fmt.Sprintf("q%d", i), 5), results("x"))
	}

	// Touch q0 so q1 becomes least recently used.
	if _, ok := c.Get(NewKey("ns", "q0", 5)); !ok {
		t.Fatal("q0 should be present")
	}

	c.Put(NewKey("ns", "q3", 5), results("x"))

	if _, ok := c.Get(NewKey("ns", "q1", 5)); ok {
		t.Error("q1 should have been evicted")
	}
	for _, q := range []string{"q0", "q2", "q3"} {
		if _, ok := c.Get(NewKey("ns", q, 5)); !ok {
			t.Errorf("%s should survive eviction", q)
		}
	}
}

func TestPutRefreshesRecency(t *testing.T) {
	c := New(2, true, nil)

	c.Put(NewKey("ns", "a", 5), results("1"))
	c.Put(NewKey("ns", "b", 5), results("1"))
	// Rewrite a: now b is LRU.
	c.Put(NewKey("ns", "a", 5), results("2"))
	c.Put(NewKey("ns", "c", 5), results("1"))

	if _, ok := c.Get(NewKey("ns", "b", 5)); ok {
		t.Error("b should have been evicted")
	}
	got, ok := c.Get(NewKey("ns", "a", 5))
	if !ok {
		t.Fatal("a should survive")
	}
	if got[0].DocumentID != "2" {
		t.Errorf("a not overwritten: %q", got[0].DocumentID)
	}
}

func TestInvalidateNamespace(t *testing.T) {
	c := New(10, true, nil)
	c.Put(NewKey("t1", "q", 5), results("a"))
	c.Put(NewKey("t2", "q", 5), results("b"))

	c.InvalidateNamespace("t1")

	if _, ok := c.Get(NewKey("t1", "q", 5)); ok {
		t.Error("t1 entry should be invalidated")
	}
	if _, ok := c.Get(NewKey("t2", "q", 5)); !ok {
		t.Error("t2 entry should be untouched")
	}
	if got := c.Stats().Size; got != 1 {
		t.Errorf("Size = %d, want 1", got)
	}
}

func TestClear(t *testing.T) {
	c := New(10, true, nil)
	c.Put(NewKey("ns", "q1", 5), results("a"))
	c.Put(NewKey("ns", "q2", 5), results("b"))

	c.Clear()

	if got := c.Stats().Size; got != 0 {
		t.Errorf("Size = %d after clear", got)
	}
	if _, ok := c.Get(NewKey("ns", "q1", 5)); ok {
		t.Error("cleared entry should miss")
	}
}

func TestDisabled(t *testing.T) {
	c := New(10, false, nil)
	key := NewKey("ns", "q", 5)

	c.Put(key, results("a"))
	if _, ok := c.Get(key); ok {
		t.Error("disabled cache must always miss")
	}
	if got := c.Stats(); got.Size != 0 || got.Enabled {
		t.Errorf("Stats = %+v", got)
	}
}

func TestDefaultCapacity(t *testing.T) {
	c := New(0, true, nil)
	if got := c.Stats().Capacity; got != DefaultCapacity {
		t.Errorf("Capacity = %d, want %d", got, DefaultCapacity)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New(50, true, nil)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := NewKey(fmt.Sprintf("ns%d", g%2), fmt.Sprintf("q%d", i%20), 5)
				switch i % 4 {
				case 0:
					c.Put(key, results("x"))
				case 1:
					c.Get(key)
				case 2:
					c.InvalidateNamespace("ns0")
				default:
					c.Stats()
				}
			}
		}(g)
	}
	wg.Wait()

	if size := c.Stats().Size; size > 50 {
		t.Errorf("cache exceeded capacity: %d", size)
	}
}
