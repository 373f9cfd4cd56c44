package chunking

import (
	"strings"
	"testing"
)

func TestSplitEmptyTextReturnsNil(t *testing.T) {
	s := NewSplitter(100)
	if got := s.Split(""); got != nil {
		t.Fatalf("expected nil for empty text, got %v", got)
	}
}

func TestSplitWindowCountIsCeil(t *testing.T) {
	s := NewSplitter(10)

	cases := []struct {
		length int
		want   int
	}{
		{1, 1},
		{9, 1},
		{10, 1},
		{11, 2},
		{25, 3},
		{30, 3},
	}
	for _, tc := range cases {
		text := strings.Repeat("a", tc.length)
		got := len(s.Split(text))
		if got != tc.want {
			t.Fatalf("len=%d: expected %d windows, got %d", tc.length, tc.want, got)
		}
	}
}

func TestSplitNoOverlap(t *testing.T) {
	s := NewSplitter(4)
	got := s.Split("abcdefgh")
	if len(got) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(got))
	}
	if got[0] != "abcd" || got[1] != "efgh" {
		t.Fatalf("unexpected windows: %v", got)
	}
}

func TestSplitCountsRunesNotBytes(t *testing.T) {
	s := NewSplitter(3)
	got := s.Split("ααββγγ")
	if len(got) != 2 {
		t.Fatalf("expected 2 windows for 6 runes, got %d", len(got))
	}
}

func TestNewSplitterDefaultsWindowSize(t *testing.T) {
	s := NewSplitter(0)
	if s.WindowSize() != 1500 {
		t.Fatalf("expected default window 1500, got %d", s.WindowSize())
	}
}
