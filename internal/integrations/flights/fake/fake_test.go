package fake

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BearBump/FareWatch/internal/integrations/flights"
)

func req(origin, destination, date string) flights.Request {
	d, _ := time.ParseInLocation("2006-01-02", date, time.UTC)
	return flights.Request{Origin: origin, Destination: destination, Date: d, Adults: 1}
}

func TestQuotes_Deterministic(t *testing.T) {
	c := New()
	a, err := c.Quotes(context.Background(), req("SFO", "JFK", "2026-06-10"))
	require.NoError(t, err)
	b, err := c.Quotes(context.Background(), req("SFO", "JFK", "2026-06-10"))
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestQuotes_PriceRangeAndShape(t *testing.T) {
	c := New()
	q, err := c.Quotes(context.Background(), req("LAX", "NRT", "2026-07-01"))
	require.NoError(t, err)
	require.NotEmpty(t, q.Itineraries)
	for _, it := range q.Itineraries {
		require.GreaterOrEqual(t, it.PriceCents, int64(80_00))
		require.Less(t, it.PriceCents, int64(80_00+500_00+120_00+1))
		require.NotEmpty(t, it.Carrier)
	}
}

func TestQuotes_MaxStopsFilter(t *testing.T) {
	c := New()
	zero := int32(0)
	r := req("SFO", "JFK", "2026-06-10")
	r.MaxStops = &zero

	q, err := c.Quotes(context.Background(), r)
	require.NoError(t, err)
	for _, it := range q.Itineraries {
		require.Equal(t, int32(0), it.Stops)
	}
}
