package pow

import "fmt"

var rateUnits = []string{"H/s", "KH/s", "MH/s", "GH/s", "TH/s", "PH/s", "EH/s"}

// FormatHashRate renders hashes per second with a scaled unit.
func FormatHashRate(rate float64) string {
	unit := 0
	for rate >= 1000 && unit < len(rateUnits)-1 {
		rate /= 1000
		unit++
	}
	return fmt.Sprintf("%.2f %s", rate, rateUnits[unit])
}
