package service

import (
	"sync"
	"testing"
)

// TestStampedeTracker_RecordMiss_Resolve verifies that RecordMiss increments and returns
// the concurrent count per key and that Resolve decrements until the key is removed.
func TestStampedeTracker_RecordMiss_Resolve(t *testing.T) {
	st := newStampedeTracker()
	key := "weather:47.6:-122.3"

	if got := st.RecordMiss(key); got != 1 {
		t.Errorf("RecordMiss first = %d, want 1", got)
	}
	if got := st.RecordMiss(key); got != 2 {
		t.Errorf("RecordMiss second = %d, want 2", got)
	}

	st.Resolve(key)
	if got := st.Active(key); got != 1 {
		t.Errorf("after one resolve Active = %d, want 1", got)
	}
	st.Resolve(key)
	st.Resolve(key)
	if got := st.RecordMiss(key); got != 1 {
		t.Errorf("after all resolved RecordMiss = %d, want 1", got)
	}
	st.Resolve(key)
}

// TestStampedeTracker_Concurrent verifies that concurrent RecordMiss/Resolve calls
// do not race and leave the tracker in a consistent state.
func TestStampedeTracker_Concurrent(t *testing.T) {
	st := newStampedeTracker()
	key := "forecast:51.5:-0.12"
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.RecordMiss(key)
			st.Resolve(key)
		}()
	}
	wg.Wait()
	if got := st.Active(key); got != 0 {
		t.Errorf("Active after concurrent ops = %d, want 0", got)
	}
}
