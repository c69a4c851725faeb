package pgtracker

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/FareWatch/internal/models"
)

func (s *Storage) InsertFareAlert(ctx context.Context, a *models.FareAlert) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO fare_alerts (
  tracker_id, owner_id, channel_id, origin, destination,
  travel_date, price_cents, max_price_cents, stops, price_level,
  checked_at, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11, now())
ON CONFLICT (tracker_id, travel_date, price_cents, checked_at) DO NOTHING
`, a.TrackerID, a.OwnerID, a.ChannelID, a.Origin, a.Destination,
		a.TravelDate, a.PriceCents, a.MaxPriceCents, a.Stops, a.PriceLevel, a.CheckedAt.UTC())
	return errors.Wrap(err, "insert fare alert")
}

func (s *Storage) ListFareAlerts(ctx context.Context, trackerID uint64, limit, offset int) ([]*models.FareAlert, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT
  id, tracker_id, owner_id, channel_id, origin, destination,
  travel_date, price_cents, max_price_cents, stops, price_level,
  checked_at, created_at
FROM fare_alerts
WHERE tracker_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`, trackerID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select fare alerts")
	}
	defer rows.Close()

	var out []*models.FareAlert
	for rows.Next() {
		var a models.FareAlert
		if err := rows.Scan(
			&a.ID, &a.TrackerID, &a.OwnerID, &a.ChannelID, &a.Origin, &a.Destination,
			&a.TravelDate, &a.PriceCents, &a.MaxPriceCents, &a.Stops, &a.PriceLevel,
			&a.CheckedAt, &a.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan fare alert")
		}
		out = append(out, &a)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// PruneFareAlerts drops alert-log rows older than the retention horizon.
func (s *Storage) PruneFareAlerts(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM fare_alerts WHERE created_at < $1`, olderThan.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "prune fare alerts")
	}
	return tag.RowsAffected(), nil
}
