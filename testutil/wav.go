package testutil

import (
	"os"
	"testing"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

// WriteWAV writes a mono 16-bit WAV of the given length to path.
func WriteWAV(tb testing.TB, path string, seconds float64, sampleRate int) string {
	tb.Helper()

	format := beep.Format{SampleRate: beep.SampleRate(sampleRate), NumChannels: 1, Precision: 2}
	total := int(seconds * float64(sampleRate))
	pos := 0
	ramp := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= total {
			return 0, false
		}
		n := 0
		for n < len(samples) && pos < total {
			v := float64(pos)/float64(total) - 0.5
			samples[n] = [2]float64{v, v}
			n++
			pos++
		}
		return n, true
	})

	f, err := os.Create(path)
	if err != nil {
		tb.Fatalf("create wav: %v", err)
	}
	defer f.Close() //nolint:errcheck // closed after encode
	if err := wav.Encode(f, ramp, format); err != nil {
		tb.Fatalf("encode wav: %v", err)
	}
	return path
}
