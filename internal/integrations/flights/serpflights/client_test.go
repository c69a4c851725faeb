package serpflights

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BearBump/FareWatch/internal/integrations/flights"
	"github.com/BearBump/FareWatch/internal/models"
)

const sampleResponse = `{
  "best_flights": [
    {"price": 320, "total_duration": 360, "flights": [{"airline": "United"}], "layovers": []}
  ],
  "other_flights": [
    {"price": 290, "total_duration": 540, "flights": [{"airline": "Delta"}], "layovers": [{}, {}]},
    {"price": 0, "total_duration": 100, "flights": [], "layovers": []}
  ],
  "price_insights": {"price_level": "low"}
}`

func testClient(url string) *Client {
	c := New(url, "test-key", "USD", time.Second, 2, 1000)
	c.backoff = time.Millisecond
	return c
}

func testRequest() flights.Request {
	return flights.Request{
		Origin:      "SFO",
		Destination: "JFK",
		Date:        time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC),
		Adults:      2,
		SeatClass:   models.SeatClassBusiness,
	}
}

func TestQuotes_ParsesFlights(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	q, err := testClient(srv.URL).Quotes(context.Background(), testRequest())
	require.NoError(t, err)

	require.Equal(t, "low", q.PriceLevel)
	// Zero-price entry is dropped.
	require.Len(t, q.Itineraries, 2)
	require.Equal(t, int64(32000), q.Itineraries[0].PriceCents)
	require.Equal(t, int32(0), q.Itineraries[0].Stops)
	require.Equal(t, "United", q.Itineraries[0].Carrier)
	require.Equal(t, int64(29000), q.Itineraries[1].PriceCents)
	require.Equal(t, int32(2), q.Itineraries[1].Stops)

	query := gotQuery.Load().(url.Values)
	require.Equal(t, "google_flights", query.Get("engine"))
	require.Equal(t, "test-key", query.Get("api_key"))
	require.Equal(t, "SFO", query.Get("departure_id"))
	require.Equal(t, "JFK", query.Get("arrival_id"))
	require.Equal(t, "2026-06-10", query.Get("outbound_date"))
	require.Equal(t, "2", query.Get("type"))
	require.Equal(t, "2", query.Get("adults"))
	require.Equal(t, "3", query.Get("travel_class"))
}

func TestQuotes_StopsParam(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.URL.Query().Get("stops"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)

	req := testRequest()
	_, err := c.Quotes(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "", got.Load().(string))

	maxStops := int32(0)
	req.MaxStops = &maxStops
	_, err = c.Quotes(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "1", got.Load().(string))

	maxStops = 1
	_, err = c.Quotes(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "2", got.Load().(string))
}

func TestQuotes_RetriesOn429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	q, err := testClient(srv.URL).Quotes(context.Background(), testRequest())
	require.NoError(t, err)
	require.Equal(t, int32(3), calls.Load())
	require.Len(t, q.Itineraries, 2)
}

func TestQuotes_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Quotes(context.Background(), testRequest())
	require.Error(t, err)
	require.Equal(t, int32(3), calls.Load()) // retries=2 -> 3 attempts
}

func TestQuotes_PermanentErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"invalid api key"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Quotes(context.Background(), testRequest())
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load())
	require.Contains(t, err.Error(), "403")
}

func TestQuotes_ContextCancelDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, "k", "USD", time.Second, 5, 1000)
	c.backoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := c.Quotes(ctx, testRequest())
	require.ErrorIs(t, err, context.Canceled)
}

func TestNew_Defaults(t *testing.T) {
	c := New("", "k", "", 0, -1, 0)
	require.Equal(t, "https://serpapi.com", c.baseURL)
	require.Equal(t, "USD", c.currency)
	require.Equal(t, 0, c.retries)
	require.Equal(t, 20*time.Second, c.httpc.Timeout)
}
