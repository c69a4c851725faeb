// Package serpflights queries Google Flights through the SerpAPI
// google_flights engine.
package serpflights

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/BearBump/FareWatch/internal/integrations/flights"
	"github.com/BearBump/FareWatch/internal/models"
)

type Client struct {
	baseURL  string
	apiKey   string
	currency string
	httpc    *http.Client
	limiter  *rate.Limiter
	retries  int
	backoff  time.Duration
}

// New builds a SerpAPI client. qps throttles outgoing requests locally, on
// top of the shared per-minute limit enforced by the worker.
func New(baseURL, apiKey, currency string, timeout time.Duration, retries int, qps float64) *Client {
	if baseURL == "" {
		baseURL = "https://serpapi.com"
	}
	if currency == "" {
		currency = "USD"
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	if qps <= 0 {
		qps = 0.5
	}
	return &Client{
		baseURL:  baseURL,
		apiKey:   apiKey,
		currency: currency,
		httpc:    &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(qps), 1),
		retries:  retries,
		backoff:  400 * time.Millisecond,
	}
}

type serpResponse struct {
	BestFlights   []serpFlight `json:"best_flights"`
	OtherFlights  []serpFlight `json:"other_flights"`
	PriceInsights struct {
		PriceLevel string `json:"price_level"`
	} `json:"price_insights"`
}

type serpFlight struct {
	Price         int64 `json:"price"`
	TotalDuration int32 `json:"total_duration"`
	Flights       []struct {
		Airline string `json:"airline"`
	} `json:"flights"`
	Layovers []any `json:"layovers"`
}

func (c *Client) Quotes(ctx context.Context, req flights.Request) (flights.Quotes, error) {
	endpoint, err := c.buildURL(req)
	if err != nil {
		return flights.Quotes{}, err
	}

	var payload serpResponse
	attempts := c.retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if err = c.fetchOnce(ctx, endpoint, &payload); err == nil {
			break
		}
		if !isTransient(err) || attempt == attempts-1 {
			return flights.Quotes{}, err
		}
		select {
		case <-ctx.Done():
			return flights.Quotes{}, ctx.Err()
		case <-time.After(c.backoff << attempt):
		}
	}

	raw := append(payload.BestFlights, payload.OtherFlights...)
	out := flights.Quotes{PriceLevel: payload.PriceInsights.PriceLevel}
	for _, f := range raw {
		if f.Price <= 0 {
			continue
		}
		carrier := ""
		if len(f.Flights) > 0 {
			carrier = f.Flights[0].Airline
		}
		out.Itineraries = append(out.Itineraries, flights.Itinerary{
			PriceCents:      f.Price * 100,
			Stops:           int32(len(f.Layovers)),
			DurationMinutes: f.TotalDuration,
			Carrier:         carrier,
		})
	}
	return out, nil
}

func (c *Client) fetchOnce(ctx context.Context, endpoint string, out *serpResponse) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "new request")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return errors.Wrapf(errTransient, "serpapi http %d", resp.StatusCode)
	}
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("serpapi http %d: %s", resp.StatusCode, body)
	}

	*out = serpResponse{}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode")
	}
	return nil
}

var errTransient = errors.New("transient provider error")

func isTransient(err error) bool {
	if errors.Is(err, errTransient) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func (c *Client) buildURL(req flights.Request) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", errors.Wrap(err, "parse base url")
	}
	u.Path = "/search.json"

	q := u.Query()
	q.Set("engine", "google_flights")
	q.Set("api_key", c.apiKey)
	q.Set("departure_id", req.Origin)
	q.Set("arrival_id", req.Destination)
	q.Set("outbound_date", req.Date.UTC().Format("2006-01-02"))
	q.Set("type", "2") // one-way
	q.Set("currency", c.currency)
	adults := req.Adults
	if adults < 1 {
		adults = 1
	}
	q.Set("adults", strconv.Itoa(int(adults)))
	q.Set("travel_class", travelClass(req.SeatClass))
	if s := stopsParam(req.MaxStops); s != "" {
		q.Set("stops", s)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func travelClass(seatClass string) string {
	switch seatClass {
	case models.SeatClassPremiumEconomy:
		return "2"
	case models.SeatClassBusiness:
		return "3"
	case models.SeatClassFirst:
		return "4"
	default:
		return "1"
	}
}

// SerpAPI stops: 1 = nonstop, 2 = one stop or fewer, 3 = two stops or fewer.
func stopsParam(maxStops *int32) string {
	if maxStops == nil {
		return ""
	}
	switch *maxStops {
	case 0:
		return "1"
	case 1:
		return "2"
	case 2:
		return "3"
	}
	return ""
}
