package tcb

import "testing"

func TestGreater(t *testing.T) {
	cases := []struct {
		a, b Seq
		want bool
	}{
		{10, 5, true},
		{5, 10, false},
		{5, 4294967295, true},
		{4294967295, 5, false},
		{2147483647, 2147483646, true},
		{2147483646, 2147483647, false},
		{0, 4294967295, true},
		{4294967295, 0, false},
		{7, 7, false},
	}
	for _, tc := range cases {
		if got := Greater(tc.a, tc.b); got != tc.want {
			t.Errorf("Greater(%d, %d) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestInWindowWrapsAroundZero(t *testing.T) {
	lo := Seq(4294967290)
	if !InWindow(Seq(4294967295), lo, 100) {
		t.Error("expected seq just before wrap to be in window")
	}
	if !InWindow(Seq(50), lo, 100) {
		t.Error("expected seq just after wrap to be in window")
	}
	if InWindow(Seq(200), lo, 100) {
		t.Error("expected seq far past window to be rejected")
	}
}

func TestInWindowZeroSize(t *testing.T) {
	if InWindow(Seq(10), Seq(10), 0) {
		t.Error("zero-size window should never contain a segment of nonzero length")
	}
}
