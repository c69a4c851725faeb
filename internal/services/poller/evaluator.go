package poller

import (
	"time"

	"github.com/BearBump/FareWatch/internal/integrations/flights"
	"github.com/BearBump/FareWatch/internal/models"
)

// QuoteSample is one queried date's lowest qualifying fare. Ephemeral: lives
// only for the cycle that produced it.
type QuoteSample struct {
	Date       time.Time
	PriceCents int64
	Stops      int32
	PriceLevel string
}

// BestSample reduces a provider answer for one date to its lowest fare that
// passes the tracker's max-stops filter. ok is false when nothing qualifies.
func BestSample(date time.Time, q flights.Quotes, maxStops *int32) (QuoteSample, bool) {
	var best *flights.Itinerary
	for i := range q.Itineraries {
		it := &q.Itineraries[i]
		if maxStops != nil && it.Stops > *maxStops {
			continue
		}
		if best == nil || it.PriceCents < best.PriceCents {
			best = it
		}
	}
	if best == nil {
		return QuoteSample{}, false
	}
	return QuoteSample{
		Date:       date,
		PriceCents: best.PriceCents,
		Stops:      best.Stops,
		PriceLevel: q.PriceLevel,
	}, true
}

type Evaluation struct {
	Found          bool
	BestPriceCents int64
	BestDate       time.Time
	Stops          int32
	PriceLevel     string

	Notify bool
}

// Evaluate picks the cycle's minimum fare across samples and decides whether
// it warrants an alert: at or under the threshold, and either never alerted
// before, strictly cheaper than the last delivered alert, or past the
// cooldown since that alert. An unchanged qualifying fare inside the
// cooldown stays silent.
func Evaluate(tr *models.Tracker, samples []QuoteSample, now time.Time, cooldown time.Duration) Evaluation {
	var ev Evaluation
	for _, s := range samples {
		if !ev.Found || s.PriceCents < ev.BestPriceCents {
			ev.Found = true
			ev.BestPriceCents = s.PriceCents
			ev.BestDate = s.Date
			ev.Stops = s.Stops
			ev.PriceLevel = s.PriceLevel
		}
	}
	if !ev.Found || ev.BestPriceCents > tr.MaxPriceCents {
		return ev
	}

	switch {
	case tr.NotifiedPriceCents == nil:
		ev.Notify = true
	case ev.BestPriceCents < *tr.NotifiedPriceCents:
		ev.Notify = true
	case tr.NotifiedAt != nil && now.Sub(*tr.NotifiedAt) >= cooldown:
		ev.Notify = true
	}
	return ev
}
