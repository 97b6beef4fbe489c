package feed

import (
	"testing"
	"time"
)

func TestNormalizeState(t *testing.T) {
	cases := map[string]string{
		"S":         StateScheduled,
		"P":         StatePlaying,
		"C":         StateCompleted,
		"onair":     StatePlaying,
		"scheduled": StateScheduled,
		"completed": StateCompleted,
		"weird":     "weird", // unknown codes pass through
	}
	for raw, want := range cases {
		if got := NormalizeState(raw); got != want {
			t.Errorf("NormalizeState(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestMillisToTime(t *testing.T) {
	want := time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC)
	if got := MillisToTime(want.UnixMilli()); !got.Equal(want) {
		t.Errorf("MillisToTime round trip = %v, want %v", got, want)
	}
	if !MillisToTime(0).IsZero() {
		t.Error("zero millis must stay the zero time")
	}
}
