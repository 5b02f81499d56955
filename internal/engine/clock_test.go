package engine

import (
	"sync"
	"testing"
	"time"
)

// TestAdmissionClock_StrictlyIncreasing hammers the clock and checks no two
// admissions ever share a timestamp.
func TestAdmissionClock_StrictlyIncreasing(t *testing.T) {
	var clock admissionClock

	prev := clock.Now()
	for i := 0; i < 10000; i++ {
		next := clock.Now()
		if !next.After(prev) {
			t.Fatalf("timestamp %v not after %v", next, prev)
		}
		prev = next
	}
}

func TestAdmissionClock_Concurrent(t *testing.T) {
	var clock admissionClock
	const workers = 8
	const perWorker = 500

	var mu sync.Mutex
	seen := make(map[int64]bool, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				ts := clock.Now().UnixMicro()
				mu.Lock()
				if seen[ts] {
					mu.Unlock()
					t.Errorf("duplicate timestamp %d", ts)
					return
				}
				seen[ts] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

func TestAdmissionClock_MicrosecondGranularity(t *testing.T) {
	var clock admissionClock

	ts := clock.Now()
	if ts.Truncate(time.Microsecond) != ts {
		t.Errorf("timestamp %v carries sub-microsecond precision", ts)
	}
	if ts.Location() != time.UTC {
		t.Errorf("timestamp location = %v, want UTC", ts.Location())
	}
}
