package transcript

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Timestamp renders whole seconds as H:MM:SS with an unpadded hour.
func Timestamp(sec float64) string {
	h, m, s := split(int64(max(sec, 0)))
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}

// Clock renders whole seconds as HH:MM:SS.
func Clock(sec float64) string {
	h, m, s := split(int64(max(sec, 0)))
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// SRTTimestamp renders sec as HH:MM:SS,mmm.
func SRTTimestamp(sec float64) string {
	return subtitleTimestamp(sec, ',')
}

// VTTTimestamp renders sec as HH:MM:SS.mmm.
func VTTTimestamp(sec float64) string {
	return subtitleTimestamp(sec, '.')
}

var thousand = decimal.NewFromInt(1000)

func subtitleTimestamp(sec float64, sep byte) string {
	// Rounded in decimal so 1.0005 becomes 1001ms rather than 1000ms.
	ms := decimal.NewFromFloat(max(sec, 0)).Mul(thousand).Round(0).IntPart()
	h, m, s := split(ms / 1000)
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", h, m, s, sep, ms%1000)
}

func split(total int64) (h, m, s int64) {
	return total / 3600, total % 3600 / 60, total % 60
}
