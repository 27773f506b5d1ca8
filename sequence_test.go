package olocus

import "testing"

func TestStrictSequenceChecker(t *testing.T) {
	t.Parallel()

	ssc := NewStrictSequenceChecker()

	// Outgoing sequence starts at 1 and increments.
	if n := ssc.NextOutSequence(); n != 1 {
		t.Fatalf("first out sequence = %d, want 1", n)
	}
	if n := ssc.NextOutSequence(); n != 2 {
		t.Fatalf("second out sequence = %d, want 2", n)
	}

	// Incoming must be strictly increasing.
	if !ssc.CheckInSequence(1) {
		t.Fatal("expected 1 to be accepted")
	}
	if ssc.CheckInSequence(1) {
		t.Fatal("expected duplicate 1 to be rejected")
	}
	if !ssc.CheckInSequence(5) {
		t.Fatal("expected jump to 5 to be accepted")
	}
	if ssc.CheckInSequence(3) {
		t.Fatal("expected late 3 to be rejected")
	}
	if ssc.CheckInSequence(0) {
		t.Fatal("expected 0 to be rejected")
	}
}

func TestLooseSequenceChecker(t *testing.T) {
	t.Parallel()

	lsc := NewLooseSequenceChecker()

	if n := lsc.NextOutSequence(); n != 1 {
		t.Fatalf("first out sequence = %d, want 1", n)
	}

	// Duplicate of the highest is rejected.
	if !lsc.CheckInSequence(5) {
		t.Fatal("expected 5 to be accepted")
	}
	if lsc.CheckInSequence(5) {
		t.Fatal("expected duplicate 5 to be rejected")
	}

	// Reordered delivery within the window is accepted once.
	if !lsc.CheckInSequence(10) {
		t.Fatal("expected 10 to be accepted")
	}
	if !lsc.CheckInSequence(7) {
		t.Fatal("expected late 7 to be accepted")
	}
	if lsc.CheckInSequence(7) {
		t.Fatal("expected duplicate late 7 to be rejected")
	}

	// Too far behind the highest is out of the window.
	if !lsc.CheckInSequence(100) {
		t.Fatal("expected 100 to be accepted")
	}
	if !lsc.CheckInSequence(36) { // diff = 64, still in view
		t.Fatal("expected 36 to be accepted")
	}
	if lsc.CheckInSequence(35) { // diff = 65, out of view
		t.Fatal("expected 35 to be out of the window")
	}
}
