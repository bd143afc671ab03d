package mathx

import "testing"

func TestFloorDivAndModNegative(t *testing.T) {
	cases := []struct {
		a, b, q, m int
	}{
		{0, 16, 0, 0},
		{15, 16, 0, 15},
		{16, 16, 1, 0},
		{-1, 16, -1, 15},
		{-16, 16, -1, 0},
		{-17, 16, -2, 15},
	}
	for _, c := range cases {
		if got := FloorDiv(c.a, c.b); got != c.q {
			t.Fatalf("FloorDiv(%d,%d)=%d want %d", c.a, c.b, got, c.q)
		}
		if got := Mod(c.a, c.b); got != c.m {
			t.Fatalf("Mod(%d,%d)=%d want %d", c.a, c.b, got, c.m)
		}
	}
}

func TestDistances(t *testing.T) {
	if d := Chebyshev(0, 0, 3, -5); d != 5 {
		t.Fatalf("Chebyshev=%d want 5", d)
	}
	if d := Manhattan(0, 0, 3, -5); d != 8 {
		t.Fatalf("Manhattan=%d want 8", d)
	}
}

func TestUnitRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		u := Unit(Hash2(42, i, -i))
		if u < 0 || u >= 1 {
			t.Fatalf("Unit out of range: %f", u)
		}
	}
	if Hash2(1, 2, 3) != Hash2(1, 2, 3) {
		t.Fatalf("Hash2 not deterministic")
	}
	if SubSeed(7, 1) == SubSeed(7, 2) {
		t.Fatalf("SubSeed collision for different salts")
	}
}
