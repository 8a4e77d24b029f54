// ABOUTME: Display formatting helpers for clocks, bitrates, and network rates
// ABOUTME: Matches the device's fixed label shapes exactly
package dashboard

import "fmt"

// FormatClock renders seconds as H:MM:SS, or M:SS under an hour.
func FormatClock(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatBitrate buckets a bits-per-second value into Kbps or Mbps.
func FormatBitrate(bps int64) string {
	if bps <= 0 {
		return ""
	}
	if bps >= 1000000 {
		return fmt.Sprintf("%.1f Mbps", float64(bps)/1000000)
	}
	return fmt.Sprintf("%d Kbps", bps/1000)
}

// FormatRate buckets a bytes-per-second value into B, KB, or MB per second
// with one decimal.
func FormatRate(bps int64) string {
	if bps < 0 {
		bps = 0
	}
	switch {
	case bps < 1024:
		return fmt.Sprintf("%.1f B/s", float64(bps))
	case bps < 1024*1024:
		return fmt.Sprintf("%.1f KB/s", float64(bps)/1024)
	default:
		return fmt.Sprintf("%.1f MB/s", float64(bps)/(1024*1024))
	}
}
