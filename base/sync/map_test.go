package sync_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	gsync "github.com/gx-org/popfuse/base/sync"
)

func TestLoadOrStore(t *testing.T) {
	var m gsync.Map[string, int]
	const numWriters = 16
	var wg sync.WaitGroup
	stored := make([]bool, numWriters)
	for i := range numWriters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, loaded := m.LoadOrStore("codelet", i)
			stored[i] = !loaded
		}()
	}
	wg.Wait()
	numStored := 0
	for _, s := range stored {
		if s {
			numStored++
		}
	}
	if numStored != 1 {
		t.Errorf("value stored %d times but want 1", numStored)
	}
	if m.Size() != 1 {
		t.Errorf("got size %d but want 1", m.Size())
	}
}

func TestSortedKeys(t *testing.T) {
	var m gsync.Map[string, int]
	for i := range 5 {
		m.LoadOrStore(fmt.Sprintf("k%d", 4-i), i)
	}
	got := m.SortedKeys(func(a, b string) bool { return a < b })
	want := []string{"k0", "k1", "k2", "k3", "k4"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected keys:\n%s", diff)
	}
	if v, ok := m.Load("k4"); !ok || v != 0 {
		t.Errorf("got %d,%t but want 0,true", v, ok)
	}
	if m.Has("k5") {
		t.Errorf("k5 reported as present")
	}
}
