package pgtracker

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/BearBump/FareWatch/internal/models"
)

const trackerColumns = `
  id, owner_id, channel_id,
  origin, destination, start_date, end_date,
  adults, seat_class, max_stops, max_price_cents,
  last_checked_at, next_check_at,
  check_cycle, check_fail_count, last_error,
  best_price_cents, best_price_date,
  notified_price_cents, notified_at,
  created_at, updated_at`

func scanTracker(row pgx.Row) (*models.Tracker, error) {
	var t models.Tracker
	if err := row.Scan(
		&t.ID, &t.OwnerID, &t.ChannelID,
		&t.Origin, &t.Destination, &t.StartDate, &t.EndDate,
		&t.Adults, &t.SeatClass, &t.MaxStops, &t.MaxPriceCents,
		&t.LastCheckedAt, &t.NextCheckAt,
		&t.CheckCycle, &t.CheckFailCount, &t.LastError,
		&t.BestPriceCents, &t.BestPriceDate,
		&t.NotifiedPriceCents, &t.NotifiedAt,
		&t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Storage) CreateTracker(ctx context.Context, in models.TrackerCreateInput) (*models.Tracker, error) {
	now := time.Now().UTC()

	// New trackers are due immediately: next_check_at = creation time.
	row := s.db.QueryRow(ctx, `
INSERT INTO trackers (
  owner_id, channel_id, origin, destination, start_date, end_date,
  adults, seat_class, max_stops, max_price_cents,
  next_check_at, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11,$11)
RETURNING `+trackerColumns, in.OwnerID, in.ChannelID, in.Origin, in.Destination,
		in.StartDate, in.EndDate, in.Adults, in.SeatClass, in.MaxStops, in.MaxPriceCents, now)

	t, err := scanTracker(row)
	if err != nil {
		return nil, errors.Wrap(err, "insert tracker")
	}
	return t, nil
}

func (s *Storage) GetTrackersByIDs(ctx context.Context, ids []uint64) ([]*models.Tracker, error) {
	if len(ids) == 0 {
		return []*models.Tracker{}, nil
	}

	rows, err := s.db.Query(ctx, `SELECT `+trackerColumns+` FROM trackers WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "select trackers")
	}
	defer rows.Close()

	out := make([]*models.Tracker, 0, len(ids))
	for rows.Next() {
		t, err := scanTracker(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan tracker")
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) ListTrackersByOwner(ctx context.Context, ownerID string) ([]*models.Tracker, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+trackerColumns+`
FROM trackers
WHERE owner_id = $1
ORDER BY id ASC`, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "select trackers by owner")
	}
	defer rows.Close()

	var out []*models.Tracker
	for rows.Next() {
		t, err := scanTracker(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan tracker")
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// RemoveTracker deletes a tracker owned by ownerID. A tracker owned by
// someone else yields models.ErrForbidden, a missing one models.ErrNotFound.
func (s *Storage) RemoveTracker(ctx context.Context, id uint64, ownerID string) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var owner string
	err = tx.QueryRow(ctx, `SELECT owner_id FROM trackers WHERE id = $1 FOR UPDATE`, id).Scan(&owner)
	if err == pgx.ErrNoRows {
		return models.ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "select tracker owner")
	}
	if owner != ownerID {
		return models.ErrForbidden
	}

	if _, err := tx.Exec(ctx, `DELETE FROM trackers WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "delete tracker")
	}
	return errors.Wrap(tx.Commit(ctx), "commit tx")
}

// RefreshTracker makes a tracker due on the next poll cycle.
func (s *Storage) RefreshTracker(ctx context.Context, id uint64) error {
	tag, err := s.db.Exec(ctx, `UPDATE trackers SET next_check_at = now(), updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "refresh tracker")
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ClaimDueTrackers selects a batch of trackers that are due for a check and
// leases them so a concurrent worker does not pick them up again while they
// are being processed. Uses SELECT ... FOR UPDATE SKIP LOCKED.
func (s *Storage) ClaimDueTrackers(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Tracker, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT `+trackerColumns+`
FROM trackers
WHERE next_check_at <= $1
ORDER BY next_check_at ASC
LIMIT $2
FOR UPDATE SKIP LOCKED
`, now.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due trackers")
	}
	defer rows.Close()

	var picked []*models.Tracker
	for rows.Next() {
		t, err := scanTracker(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan due tracker")
		}
		picked = append(picked, t)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	leaseUntil := now.UTC().Add(lease)
	for _, t := range picked {
		_, err := tx.Exec(ctx, `UPDATE trackers SET next_check_at = $2, updated_at = now() WHERE id = $1`, t.ID, leaseUntil)
		if err != nil {
			return nil, errors.Wrap(err, "lease tracker")
		}
		t.NextCheckAt = leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}

// CheckUpdate is one cycle's settle payload for a tracker.
type CheckUpdate struct {
	TrackerID uint64

	CheckedAt   time.Time
	NextCheckAt time.Time

	BestPriceCents *int64
	BestPriceDate  *time.Time

	// Set only when the alert was actually delivered, so a failed delivery
	// re-fires on the next cycle instead of being lost.
	NotifiedPriceCents *int64
	NotifiedAt         *time.Time

	Error *string
}

func (s *Storage) ApplyCheckUpdate(ctx context.Context, upd CheckUpdate) error {
	if upd.Error != nil && *upd.Error != "" {
		_, err := s.db.Exec(ctx, `
UPDATE trackers
SET
  last_checked_at = $2,
  next_check_at = $3,
  check_fail_count = check_fail_count + 1,
  last_error = $4,
  updated_at = now()
WHERE id = $1
`, upd.TrackerID, upd.CheckedAt.UTC(), upd.NextCheckAt.UTC(), *upd.Error)
		return errors.Wrap(err, "update tracker (error)")
	}

	_, err := s.db.Exec(ctx, `
UPDATE trackers
SET
  last_checked_at = $2,
  next_check_at = $3,
  check_cycle = check_cycle + 1,
  check_fail_count = 0,
  last_error = NULL,
  best_price_cents = COALESCE($4, best_price_cents),
  best_price_date = COALESCE($5, best_price_date),
  notified_price_cents = COALESCE($6, notified_price_cents),
  notified_at = COALESCE($7, notified_at),
  updated_at = now()
WHERE id = $1
`, upd.TrackerID, upd.CheckedAt.UTC(), upd.NextCheckAt.UTC(),
		upd.BestPriceCents, upd.BestPriceDate, upd.NotifiedPriceCents, upd.NotifiedAt)
	return errors.Wrap(err, "update tracker (ok)")
}
