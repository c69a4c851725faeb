package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStaleAt_EndDateExclusive(t *testing.T) {
	now := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)

	tr := &Tracker{EndDate: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)}
	require.True(t, tr.StaleAt(now), "range ending today has no queryable dates left")

	tr.EndDate = time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	require.False(t, tr.StaleAt(now), "today itself is still queryable")
}

func TestMidnight(t *testing.T) {
	in := time.Date(2026, 3, 15, 23, 59, 59, 1e8, time.FixedZone("UTC+5", 5*3600))
	got := Midnight(in)
	require.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), got)
}

func TestValidSeatClass(t *testing.T) {
	require.True(t, ValidSeatClass(SeatClassEconomy))
	require.True(t, ValidSeatClass(SeatClassPremiumEconomy))
	require.True(t, ValidSeatClass(SeatClassBusiness))
	require.True(t, ValidSeatClass(SeatClassFirst))
	require.False(t, ValidSeatClass("coach"))
	require.False(t, ValidSeatClass(""))
}
