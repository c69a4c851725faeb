package models

import "time"

// Seat classes accepted by the flight-search provider.
const (
	SeatClassEconomy        = "economy"
	SeatClassPremiumEconomy = "premium-economy"
	SeatClassBusiness       = "business"
	SeatClassFirst          = "first"
)

// Tracker is a user's standing watch on a route: re-checked periodically,
// alerted when a fare at or below MaxPriceCents shows up.
// StartDate/EndDate are date-only UTC; EndDate is exclusive.
type Tracker struct {
	ID        uint64
	OwnerID   string
	ChannelID string

	Origin      string
	Destination string
	StartDate   time.Time
	EndDate     time.Time

	Adults        int32
	SeatClass     string
	MaxStops      *int32
	MaxPriceCents int64

	LastCheckedAt  *time.Time
	NextCheckAt    time.Time
	CheckCycle     int32
	CheckFailCount int32
	LastError      *string

	// Lowest qualifying fare found on the most recent successful check.
	BestPriceCents *int64
	BestPriceDate  *time.Time

	// Last alert actually delivered; used to suppress repeat alerts.
	NotifiedPriceCents *int64
	NotifiedAt         *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StaleAt reports whether the whole date range is already in the past, i.e.
// there is nothing left to query. Stale trackers are reported, not deleted.
func (t *Tracker) StaleAt(now time.Time) bool {
	today := Midnight(now)
	return !t.EndDate.After(today)
}

// Midnight truncates t to a date-only UTC value.
func Midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ValidSeatClass reports whether s is one of the provider's seat classes.
func ValidSeatClass(s string) bool {
	switch s {
	case SeatClassEconomy, SeatClassPremiumEconomy, SeatClassBusiness, SeatClassFirst:
		return true
	}
	return false
}

type TrackerCreateInput struct {
	OwnerID   string
	ChannelID string

	Origin      string
	Destination string
	StartDate   time.Time
	EndDate     time.Time

	Adults        int32
	SeatClass     string
	MaxStops      *int32
	MaxPriceCents int64
}

// FareAlert is one persisted alert-log entry: a qualifying fare that was
// published for a tracker.
type FareAlert struct {
	ID        uint64
	TrackerID uint64
	OwnerID   string
	ChannelID string

	Origin      string
	Destination string
	TravelDate  time.Time

	PriceCents    int64
	MaxPriceCents int64
	Stops         int32
	PriceLevel    string

	CheckedAt time.Time
	CreatedAt time.Time
}
