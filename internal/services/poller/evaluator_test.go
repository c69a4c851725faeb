package poller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BearBump/FareWatch/internal/integrations/flights"
	"github.com/BearBump/FareWatch/internal/models"
)

func i32(v int32) *int32 { return &v }
func i64(v int64) *int64 { return &v }

func TestBestSample_PicksCheapestWithinStops(t *testing.T) {
	d := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	q := flights.Quotes{
		PriceLevel: flights.PriceLevelLow,
		Itineraries: []flights.Itinerary{
			{PriceCents: 30000, Stops: 2},
			{PriceCents: 35000, Stops: 0},
			{PriceCents: 32000, Stops: 1},
		},
	}

	s, ok := BestSample(d, q, nil)
	require.True(t, ok)
	require.Equal(t, int64(30000), s.PriceCents)

	s, ok = BestSample(d, q, i32(1))
	require.True(t, ok)
	require.Equal(t, int64(32000), s.PriceCents)
	require.Equal(t, flights.PriceLevelLow, s.PriceLevel)

	_, ok = BestSample(d, flights.Quotes{}, nil)
	require.False(t, ok)
}

func TestBestSample_NothingQualifies(t *testing.T) {
	d := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	q := flights.Quotes{Itineraries: []flights.Itinerary{{PriceCents: 30000, Stops: 2}}}
	_, ok := BestSample(d, q, i32(0))
	require.False(t, ok)
}

func newTracker(maxPriceCents int64) *models.Tracker {
	return &models.Tracker{ID: 1, MaxPriceCents: maxPriceCents}
}

func sample(date string, cents int64) QuoteSample {
	d, _ := time.ParseInLocation("2006-01-02", date, time.UTC)
	return QuoteSample{Date: d, PriceCents: cents}
}

func TestEvaluate_FirstQualifyingFareNotifies(t *testing.T) {
	now := time.Now().UTC()
	tr := newTracker(40000) // $400 threshold

	ev := Evaluate(tr, []QuoteSample{sample("2026-06-10", 35000)}, now, 6*time.Hour)
	require.True(t, ev.Found)
	require.True(t, ev.Notify)
	require.Equal(t, int64(35000), ev.BestPriceCents)
}

func TestEvaluate_SameFareInsideCooldownStaysSilent(t *testing.T) {
	now := time.Now().UTC()
	notifiedAt := now.Add(-1 * time.Hour)
	tr := newTracker(40000)
	tr.NotifiedPriceCents = i64(35000)
	tr.NotifiedAt = &notifiedAt

	ev := Evaluate(tr, []QuoteSample{sample("2026-06-10", 35000)}, now, 6*time.Hour)
	require.True(t, ev.Found)
	require.False(t, ev.Notify)
}

func TestEvaluate_AboveThresholdNeverNotifies(t *testing.T) {
	now := time.Now().UTC()
	tr := newTracker(40000)
	tr.NotifiedPriceCents = i64(35000)

	ev := Evaluate(tr, []QuoteSample{sample("2026-06-10", 42000)}, now, 6*time.Hour)
	require.True(t, ev.Found)
	require.Equal(t, int64(42000), ev.BestPriceCents)
	require.False(t, ev.Notify)
}

func TestEvaluate_CheaperFareNotifiesInsideCooldown(t *testing.T) {
	now := time.Now().UTC()
	notifiedAt := now.Add(-1 * time.Hour)
	tr := newTracker(40000)
	tr.NotifiedPriceCents = i64(35000)
	tr.NotifiedAt = &notifiedAt

	ev := Evaluate(tr, []QuoteSample{sample("2026-06-10", 34000)}, now, 6*time.Hour)
	require.True(t, ev.Notify)
	require.Equal(t, int64(34000), ev.BestPriceCents)
}

func TestEvaluate_SameFarePastCooldownReNotifies(t *testing.T) {
	now := time.Now().UTC()
	notifiedAt := now.Add(-7 * time.Hour)
	tr := newTracker(40000)
	tr.NotifiedPriceCents = i64(35000)
	tr.NotifiedAt = &notifiedAt

	ev := Evaluate(tr, []QuoteSample{sample("2026-06-10", 35000)}, now, 6*time.Hour)
	require.True(t, ev.Notify)
}

func TestEvaluate_DefaultCooldownOutlastsCheckInterval(t *testing.T) {
	p := New(&fakeRepo{}, &fakeFlights{}, &fakeProducer{}, nil, "t")
	interval := DefaultPlannerConfig().CheckInterval
	require.Greater(t, p.cooldown, interval)

	// One check cycle after the last notification, the same fare must stay
	// quiet under the default cooldown.
	now := time.Now().UTC()
	notifiedAt := now.Add(-(interval + time.Second))
	tr := newTracker(40000)
	tr.NotifiedPriceCents = i64(35000)
	tr.NotifiedAt = &notifiedAt

	ev := Evaluate(tr, []QuoteSample{sample("2026-06-10", 35000)}, now, p.cooldown)
	require.True(t, ev.Found)
	require.False(t, ev.Notify)

	// A cheaper fare still cuts through.
	ev = Evaluate(tr, []QuoteSample{sample("2026-06-10", 34000)}, now, p.cooldown)
	require.True(t, ev.Notify)
}

func TestEvaluate_ThresholdIsInclusive(t *testing.T) {
	now := time.Now().UTC()
	tr := newTracker(35000)
	ev := Evaluate(tr, []QuoteSample{sample("2026-06-10", 35000)}, now, 6*time.Hour)
	require.True(t, ev.Notify)
}

func TestEvaluate_PicksMinimumAcrossDates(t *testing.T) {
	now := time.Now().UTC()
	tr := newTracker(40000)
	ev := Evaluate(tr, []QuoteSample{
		sample("2026-06-10", 39000),
		sample("2026-06-12", 33000),
		sample("2026-06-14", 36000),
	}, now, 6*time.Hour)
	require.Equal(t, int64(33000), ev.BestPriceCents)
	require.Equal(t, "2026-06-12", ev.BestDate.Format("2006-01-02"))
}

func TestEvaluate_NoSamples(t *testing.T) {
	ev := Evaluate(newTracker(40000), nil, time.Now().UTC(), 6*time.Hour)
	require.False(t, ev.Found)
	require.False(t, ev.Notify)
}
