package diarization

import (
	"strings"
	"testing"
)

func TestAlign(t *testing.T) {
	tests := []struct {
		name     string
		turns    []Turn
		segments []Segment
		want     []AlignedTurn
	}{
		{
			name:     "overlap goes to the first turn",
			turns:    []Turn{{Speaker: "S0", Start: 0, End: 5}, {Speaker: "S1", Start: 4, End: 12}},
			segments: []Segment{{Start: 0, End: 10, Text: "a"}},
			want:     []AlignedTurn{{Speaker: "S0", Start: 0, End: 5, Text: "a"}},
		},
		{
			name: "silent turn is dropped",
			turns: []Turn{
				{Speaker: "S0", Start: 0, End: 2},
				{Speaker: "S1", Start: 20, End: 25},
				{Speaker: "S0", Start: 2, End: 6},
			},
			segments: []Segment{{Start: 0, End: 1.5, Text: " hi "}, {Start: 3, End: 5, Text: "there"}},
			want: []AlignedTurn{
				{Speaker: "S0", Start: 0, End: 2, Text: "hi"},
				{Speaker: "S0", Start: 2, End: 6, Text: "there"},
			},
		},
		{
			name:     "touching intervals do not overlap",
			turns:    []Turn{{Speaker: "S0", Start: 5, End: 10}},
			segments: []Segment{{Start: 0, End: 5, Text: "before"}, {Start: 10, End: 12, Text: "after"}},
			want:     []AlignedTurn{},
		},
		{
			name:     "texts joined in segment order",
			turns:    []Turn{{Speaker: "S1", Start: 0, End: 30}},
			segments: []Segment{{Start: 1, End: 2, Text: " one"}, {Start: 3, End: 4, Text: "two "}, {Start: 5, End: 6, Text: "three"}},
			want:     []AlignedTurn{{Speaker: "S1", Start: 0, End: 30, Text: "one two three"}},
		},
		{
			name:  "emission order is kept",
			turns: []Turn{{Speaker: "S1", Start: 10, End: 20}, {Speaker: "S0", Start: 0, End: 10}},
			segments: []Segment{
				{Start: 1, End: 3, Text: "early"},
				{Start: 12, End: 14, Text: "late"},
			},
			want: []AlignedTurn{
				{Speaker: "S1", Start: 10, End: 20, Text: "late"},
				{Speaker: "S0", Start: 0, End: 10, Text: "early"},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Align(tc.turns, tc.segments)
			if len(got) != len(tc.want) {
				t.Fatalf("got %d turns %+v, want %d", len(got), got, len(tc.want))
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("turn %d = %+v, want %+v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestAlignNoSplit(t *testing.T) {
	var turns []Turn
	for i := range 10 {
		turns = append(turns, Turn{Speaker: "S", Start: float64(i) * 3, End: float64(i)*3 + 5})
	}
	var segments []Segment
	for i := range 15 {
		segments = append(segments, Segment{Start: float64(i) * 2, End: float64(i)*2 + 3, Text: "w" + string(rune('a'+i))})
	}

	counts := map[string]int{}
	for _, at := range Align(turns, segments) {
		for _, word := range strings.Fields(at.Text) {
			counts[word]++
		}
	}
	for word, n := range counts {
		if n > 1 {
			t.Errorf("segment %q attributed %d times", word, n)
		}
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		completed, total int
		want             float64
	}{
		{0, 10, 0},
		{5, 10, 0.5},
		{12, 10, 1},
		{-1, 10, 0},
		{3, 0, 0},
	}
	for _, tc := range tests {
		if got := Percent(tc.completed, tc.total); got != tc.want {
			t.Errorf("Percent(%d, %d) = %v, want %v", tc.completed, tc.total, got, tc.want)
		}
	}
	if got := ProgressText("segmentation", 3, 10); got != "segmentation: 3/10 (30%)" {
		t.Errorf("ProgressText = %q", got)
	}
}
