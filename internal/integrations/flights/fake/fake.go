package fake

import (
	"context"
	"hash/fnv"

	"github.com/BearBump/FareWatch/internal/integrations/flights"
)

// FakeClient returns deterministic quotes derived from (route, date), so
// tests and the demo compose get stable prices without a provider key.
type FakeClient struct{}

func New() *FakeClient { return &FakeClient{} }

func (f *FakeClient) Quotes(ctx context.Context, req flights.Request) (flights.Quotes, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(req.Origin))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(req.Destination))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(req.Date.UTC().Format("2006-01-02")))
	v := h.Sum32()

	// Roughly $80..$580, one to three itineraries per date.
	base := int64(80_00 + v%500_00)
	level := flights.PriceLevelTypical
	switch v % 5 {
	case 0:
		level = flights.PriceLevelLow
	case 4:
		level = flights.PriceLevelHigh
	}

	its := []flights.Itinerary{
		{PriceCents: base, Stops: int32(v % 3), DurationMinutes: 90 + int32(v%360), Carrier: "FakeAir"},
		{PriceCents: base + 45_00, Stops: 0, DurationMinutes: 80 + int32(v%120), Carrier: "FakeAir"},
	}
	if v%2 == 0 {
		its = append(its, flights.Itinerary{PriceCents: base + 120_00, Stops: 1, DurationMinutes: 300, Carrier: "StubJet"})
	}

	out := flights.Quotes{PriceLevel: level}
	for _, it := range its {
		if req.MaxStops != nil && it.Stops > *req.MaxStops {
			continue
		}
		out.Itineraries = append(out.Itineraries, it)
	}
	return out, nil
}
