package rctime_test

import (
	"testing"

	"github.com/zenjabba/cephgeorep/internal/rctime"
)

func TestTime_Compare(t *testing.T) {
	cases := []struct {
		name string
		a, b rctime.Time
		want int
	}{
		{"equal", rctime.Time{Sec: 100, Nsec: 5}, rctime.Time{Sec: 100, Nsec: 5}, 0},
		{"seconds greater", rctime.Time{Sec: 101}, rctime.Time{Sec: 100, Nsec: 999}, 1},
		{"seconds less", rctime.Time{Sec: 99, Nsec: 999}, rctime.Time{Sec: 100}, -1},
		{"nsec tiebreak greater", rctime.Time{Sec: 100, Nsec: 2}, rctime.Time{Sec: 100, Nsec: 1}, 1},
		{"nsec tiebreak less", rctime.Time{Sec: 100, Nsec: 1}, rctime.Time{Sec: 100, Nsec: 2}, -1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.a.Compare(c.b); got != c.want {
				t.Errorf("Compare(%v, %v) = %d, want %d", c.a, c.b, got, c.want)
			}
		})
	}
}

func TestTime_AfterBefore(t *testing.T) {
	newer := rctime.Time{Sec: 200}
	older := rctime.Time{Sec: 100}
	if !newer.After(older) {
		t.Error("expected newer.After(older) to be true")
	}
	if !older.Before(newer) {
		t.Error("expected older.Before(newer) to be true")
	}
	if newer.Before(older) || older.After(newer) {
		t.Error("symmetric comparisons failed")
	}
}

func TestSeed(t *testing.T) {
	// The sentinel (1, 0) must compare as newer than any real watermark
	// observed before the epoch+1s, i.e. effectively "seed everything".
	if !rctime.Seed.After(rctime.Zero) {
		t.Error("Seed must be after Zero")
	}
}

func TestParseString_RoundTrip(t *testing.T) {
	cases := []rctime.Time{
		{Sec: 0, Nsec: 0},
		{Sec: 1700000000, Nsec: 123456789},
		{Sec: 1, Nsec: 0},
	}
	for _, want := range cases {
		s := want.String()
		got, err := rctime.Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", s, err)
		}
		if got != want {
			t.Errorf("round trip mismatch: %v -> %q -> %v", want, s, got)
		}
	}
}

func TestParse_BareInteger(t *testing.T) {
	got, err := rctime.Parse("1700000000")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	want := rctime.Time{Sec: 1700000000, Nsec: 0}
	if got != want {
		t.Errorf("Parse(bare int) = %v, want %v", got, want)
	}
}

func TestParse_ShortFraction(t *testing.T) {
	// "5.2" must mean 5s + 200000000ns, not 5s + 2ns.
	got, err := rctime.Parse("5.2")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	want := rctime.Time{Sec: 5, Nsec: 200000000}
	if got != want {
		t.Errorf("Parse(%q) = %v, want %v", "5.2", got, want)
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, s := range []string{"", "abc", "1.abc", "abc.1"} {
		if _, err := rctime.Parse(s); err == nil {
			t.Errorf("Parse(%q) expected error, got nil", s)
		}
	}
}
