package simtime

import "testing"

func TestRound(t *testing.T) {
	cases := []struct {
		in, quantum, want Time
	}{
		{3.04999, 0.1, 3.0},
		{3.05001, 0.1, 3.1},
		{1.0, 0, 1.0},
	}
	for _, c := range cases {
		if got := c.in.Round(c.quantum); got != c.want {
			t.Fatalf("Round(%v,%v) = %v, want %v", c.in, c.quantum, got, c.want)
		}
	}
}

func TestEqualWithinHalfQuantum(t *testing.T) {
	quantum := Time(0.1)
	if !Time(3.24).Equal(3.2, quantum) {
		t.Fatalf("expected 3.24 to be within half quantum of 3.2")
	}
	if Time(3.3).Equal(3.2, quantum) {
		t.Fatalf("expected 3.3 to be outside half quantum of 3.2")
	}
}

func TestLessRespectsQuantum(t *testing.T) {
	quantum := Time(0.1)
	if Less(3.24, 3.2, quantum) {
		t.Fatalf("values within quantum slack must not compare less")
	}
	if !Less(3.0, 3.2, quantum) {
		t.Fatalf("expected 3.0 < 3.2")
	}
}

func TestMin(t *testing.T) {
	min, ok := Min(3.2, 1.1, 5.0)
	if !ok || min != 1.1 {
		t.Fatalf("Min() = %v,%v want 1.1,true", min, ok)
	}
	if _, ok := Min(); ok {
		t.Fatalf("Min() on empty set must report false")
	}
}
