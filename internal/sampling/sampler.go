// Package sampling picks which departure dates of a tracker's range get
// queried on a given poll cycle, so wide ranges stay within the per-cycle
// query budget while every date is still covered over successive cycles.
package sampling

import "time"

// Dates returns up to budget dates from [start, end), never before today.
// When more than budget dates remain, the range is split into budget
// near-equal buckets and one representative is taken per bucket, rotated by
// the cycle counter: any ceil(n/budget) consecutive cycles visit every
// remaining date at least once.
func Dates(start, end, now time.Time, budget int, cycle int32) []time.Time {
	if budget <= 0 {
		return nil
	}

	lo := midnight(start)
	end = midnight(end)
	if today := midnight(now); today.After(lo) {
		lo = today
	}

	n := daysBetween(lo, end)
	if n <= 0 {
		return nil
	}
	if n <= budget {
		out := make([]time.Time, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, lo.AddDate(0, 0, i))
		}
		return out
	}

	c := int(cycle)
	if c < 0 {
		c = 0
	}
	out := make([]time.Time, 0, budget)
	for i := 0; i < budget; i++ {
		bLo := i * n / budget
		bHi := (i + 1) * n / budget
		off := bLo + c%(bHi-bLo)
		out = append(out, lo.AddDate(0, 0, off))
	}
	return out
}

func midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a) / (24 * time.Hour))
}
