package messages

import "time"

// FareAlert is published to the alerts topic when a tracker's check finds a
// qualifying fare. The chat layer consumes it for delivery; fare-api consumes
// it into the durable alert log.
type FareAlert struct {
	TrackerID uint64 `json:"tracker_id"`
	OwnerID   string `json:"owner_id"`
	ChannelID string `json:"channel_id,omitempty"`

	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	TravelDate  string `json:"travel_date"` // YYYY-MM-DD

	PriceCents    int64  `json:"price_cents"`
	MaxPriceCents int64  `json:"max_price_cents"`
	Stops         int32  `json:"stops"`
	PriceLevel    string `json:"price_level,omitempty"`

	CheckedAt time.Time `json:"checked_at"`
}
