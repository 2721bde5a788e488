package util

import (
	"testing"
	"time"
)

func TestCeilPow2(t *testing.T) {
	for in, want := range map[int]int{0: 2, 1: 2, 2: 2, 3: 4, 200: 256, 256: 256, 257: 512} {
		if got := CeilPow2(in); got != want {
			t.Fatalf("CeilPow2(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestResetAndDrainTimer(t *testing.T) {
	tm := StoppedTimer()
	select {
	case <-tm.C:
		t.Fatal("stopped timer fired")
	case <-time.After(5 * time.Millisecond):
	}

	ResetTimer(tm, 1*time.Millisecond)
	select {
	case <-tm.C:
	case <-time.After(50 * time.Millisecond):
		t.Fatal("timer did not fire after ResetTimer")
	}
	// Negative reset clamps to zero and should fire immediately.
	ResetTimer(tm, -1)
	select {
	case <-tm.C:
	case <-time.After(50 * time.Millisecond):
		t.Fatal("timer did not fire after negative ResetTimer")
	}
}
