package transcript

import (
	"bufio"
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/kbukum/sonify/transcription"
)

// Format names an output format.
type Format string

// Supported formats.
const (
	FormatText     Format = "txt"
	FormatSRT      Format = "srt"
	FormatVTT      Format = "vtt"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "md"
)

// sorted returns segments ordered by start time.
func sorted(segments []transcription.Segment) []transcription.Segment {
	out := slices.Clone(segments)
	slices.SortStableFunc(out, func(a, b transcription.Segment) int { return cmp.Compare(a.Start, b.Start) })
	return out
}

// WriteText writes one "[H:MM:SS–H:MM:SS] text" paragraph per segment.
func WriteText(w io.Writer, segments []transcription.Segment) error {
	bw := bufio.NewWriter(w)
	for _, s := range sorted(segments) {
		fmt.Fprintf(bw, "[%s–%s] %s\n\n", Timestamp(s.Start), Timestamp(s.End), strings.TrimSpace(s.Text))
	}
	return bw.Flush()
}

// WriteSRT writes segments as SubRip cues.
func WriteSRT(w io.Writer, segments []transcription.Segment) error {
	bw := bufio.NewWriter(w)
	for i, s := range sorted(segments) {
		fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n\n", i+1, SRTTimestamp(s.Start), SRTTimestamp(s.End), strings.TrimSpace(s.Text))
	}
	return bw.Flush()
}

// WriteVTT writes segments as a WebVTT document.
func WriteVTT(w io.Writer, segments []transcription.Segment) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("WEBVTT\n\n")
	for _, s := range sorted(segments) {
		fmt.Fprintf(bw, "%s --> %s\n%s\n\n", VTTTimestamp(s.Start), VTTTimestamp(s.End), strings.TrimSpace(s.Text))
	}
	return bw.Flush()
}

// WriteSegments writes segments in format. JSON and markdown are not
// segment formats and return an error.
func WriteSegments(w io.Writer, format Format, segments []transcription.Segment) error {
	switch format {
	case FormatText, "":
		return WriteText(w, segments)
	case FormatSRT:
		return WriteSRT(w, segments)
	case FormatVTT:
		return WriteVTT(w, segments)
	default:
		return fmt.Errorf("transcript: unsupported segment format %q", format)
	}
}

// WriteSpeakers writes blocks as markdown, "**name** [start–end]: text".
func WriteSpeakers(w io.Writer, blocks []Block) error {
	bw := bufio.NewWriter(w)
	for _, b := range blocks {
		fmt.Fprintf(bw, "**%s** [%s–%s]: %s\n\n", b.Speaker, Timestamp(b.Start), Timestamp(b.End), b.Text)
	}
	return bw.Flush()
}
