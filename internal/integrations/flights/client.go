package flights

import (
	"context"
	"time"
)

// Coarse per-date price signal, when the provider supplies one.
const (
	PriceLevelLow     = "low"
	PriceLevelTypical = "typical"
	PriceLevelHigh    = "high"
)

type Request struct {
	Origin      string
	Destination string
	Date        time.Time
	Adults      int32
	SeatClass   string
	MaxStops    *int32
}

type Itinerary struct {
	PriceCents      int64
	Stops           int32
	DurationMinutes int32
	Carrier         string
}

// Quotes is the provider's answer for one route/date. An empty Itineraries
// slice is a valid "nothing flies that day" result, not an error.
type Quotes struct {
	Itineraries []Itinerary
	PriceLevel  string
}

type Client interface {
	Quotes(ctx context.Context, req Request) (Quotes, error)
}
