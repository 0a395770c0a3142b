package console

import (
	"fmt"
	"time"
)

func FormatBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.2f GiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.2f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.2f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func FormatRows(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.2fM rows", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk rows", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d rows", n)
	}
}

func FormatDuration(d time.Duration) string {
	switch {
	case d >= time.Minute:
		return fmt.Sprintf("%.1fm", d.Minutes())
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
}

func FormatPercent(done, total int) string {
	if total <= 0 {
		return "0%"
	}
	percent := float64(done) / float64(total) * 100
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return fmt.Sprintf("%.1f%%", percent)
}
