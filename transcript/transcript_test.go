package transcript

import (
	"bytes"
	"slices"
	"testing"

	"github.com/kbukum/sonify/diarization"
	"github.com/kbukum/sonify/transcription"
)

func TestTimestamps(t *testing.T) {
	tests := []struct {
		sec                   float64
		stamp, clock, srt, vt string
	}{
		{0, "0:00:00", "00:00:00", "00:00:00,000", "00:00:00.000"},
		{65.4, "0:01:05", "00:01:05", "00:01:05,400", "00:01:05.400"},
		{3725.9994, "1:02:05", "01:02:05", "01:02:05,999", "01:02:05.999"},
		{1.0005, "0:00:01", "00:00:01", "00:00:01,001", "00:00:01.001"},
		{-3, "0:00:00", "00:00:00", "00:00:00,000", "00:00:00.000"},
	}
	for _, tc := range tests {
		if got := Timestamp(tc.sec); got != tc.stamp {
			t.Errorf("Timestamp(%v) = %q, want %q", tc.sec, got, tc.stamp)
		}
		if got := Clock(tc.sec); got != tc.clock {
			t.Errorf("Clock(%v) = %q, want %q", tc.sec, got, tc.clock)
		}
		if got := SRTTimestamp(tc.sec); got != tc.srt {
			t.Errorf("SRTTimestamp(%v) = %q, want %q", tc.sec, got, tc.srt)
		}
		if got := VTTTimestamp(tc.sec); got != tc.vt {
			t.Errorf("VTTTimestamp(%v) = %q, want %q", tc.sec, got, tc.vt)
		}
	}
}

var turns = []diarization.AlignedTurn{
	{Speaker: "SPEAKER_00", Start: 0, End: 4, Text: "hi"},
	{Speaker: "SPEAKER_00", Start: 5, End: 9, Text: "how are you"},
	{Speaker: "SPEAKER_01", Start: 10, End: 14, Text: "fine"},
	{Speaker: "SPEAKER_02", Start: 15, End: 20, Text: "me too"},
}

func TestMerge(t *testing.T) {
	names := map[string]string{"SPEAKER_00": "Ana", "SPEAKER_01": "Ben", "SPEAKER_02": "Ben"}

	got := Merge(turns, names)
	want := []Block{
		{Speaker: "Ana", Start: 0, End: 10, Text: "hi how are you"},
		{Speaker: "Ben", Start: 10, End: 15, Text: "fine me too"},
	}
	if !slices.Equal(got, want) {
		t.Errorf("Merge = %+v\nwant %+v", got, want)
	}

	got = Merge(turns, names, WithTrueEnd())
	want[0].End, want[1].End = 9, 20
	if !slices.Equal(got, want) {
		t.Errorf("Merge(WithTrueEnd) = %+v\nwant %+v", got, want)
	}
}

func TestMergeUnnamed(t *testing.T) {
	got := Merge(turns, nil)
	if len(got) != 3 {
		t.Fatalf("expected 3 blocks, got %+v", got)
	}
	if got[2].Speaker != "SPEAKER_02" || got[2].End != 15 {
		t.Errorf("final block should end at its own start, got %+v", got[2])
	}
	if len(Merge(nil, nil)) != 0 {
		t.Errorf("no turns should yield no blocks")
	}
}

func TestSpeakers(t *testing.T) {
	got := Speakers(append(slices.Clone(turns), diarization.AlignedTurn{Speaker: "SPEAKER_00"}))
	if !slices.Equal(got, []string{"SPEAKER_00", "SPEAKER_01", "SPEAKER_02"}) {
		t.Errorf("Speakers = %v", got)
	}
}

var segments = []transcription.Segment{
	{Start: 61.25, End: 63, Text: " second"},
	{Start: 0.5, End: 2.75, Text: " first "},
}

func TestWriters(t *testing.T) {
	tests := []struct {
		format Format
		want   string
	}{
		{FormatText, "[0:00:00–0:00:02] first\n\n[0:01:01–0:01:03] second\n\n"},
		{FormatSRT, "1\n00:00:00,500 --> 00:00:02,750\nfirst\n\n2\n00:01:01,250 --> 00:01:03,000\nsecond\n\n"},
		{FormatVTT, "WEBVTT\n\n00:00:00.500 --> 00:00:02.750\nfirst\n\n00:01:01.250 --> 00:01:03.000\nsecond\n\n"},
	}
	for _, tc := range tests {
		t.Run(string(tc.format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteSegments(&buf, tc.format, segments); err != nil {
				t.Fatal(err)
			}
			if buf.String() != tc.want {
				t.Errorf("got\n%q\nwant\n%q", buf.String(), tc.want)
			}
		})
	}
	if err := WriteSegments(&bytes.Buffer{}, FormatJSON, segments); err == nil {
		t.Error("json is not a segment format")
	}
}

func TestWriteSpeakers(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSpeakers(&buf, []Block{{Speaker: "Ana", Start: 0, End: 75, Text: "hello"}}); err != nil {
		t.Fatal(err)
	}
	if want := "**Ana** [0:00:00–0:01:15]: hello\n\n"; buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}
