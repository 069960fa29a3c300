package diarization

import "fmt"

// Percent returns completed/total clamped to [0, 1]; zero when total is
// not positive.
func Percent(completed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return max(0, min(float64(completed)/float64(total), 1))
}

// ProgressText renders a step update as "step: completed/total (pct%)".
func ProgressText(step string, completed, total int) string {
	return fmt.Sprintf("%s: %d/%d (%.0f%%)", step, completed, total, Percent(completed, total)*100)
}
