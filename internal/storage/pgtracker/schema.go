package pgtracker

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS trackers (
  id BIGSERIAL PRIMARY KEY,
  owner_id TEXT NOT NULL,
  channel_id TEXT NOT NULL DEFAULT '',
  origin TEXT NOT NULL,
  destination TEXT NOT NULL,
  start_date DATE NOT NULL,
  end_date DATE NOT NULL,
  adults INT NOT NULL DEFAULT 1,
  seat_class TEXT NOT NULL,
  max_stops INT NULL,
  max_price_cents BIGINT NOT NULL,
  last_checked_at TIMESTAMPTZ NULL,
  next_check_at TIMESTAMPTZ NOT NULL,
  check_cycle INT NOT NULL DEFAULT 0,
  check_fail_count INT NOT NULL DEFAULT 0,
  last_error TEXT NULL,
  best_price_cents BIGINT NULL,
  best_price_date DATE NULL,
  notified_price_cents BIGINT NULL,
  notified_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_trackers_next_check_at ON trackers(next_check_at)`,
		`CREATE INDEX IF NOT EXISTS idx_trackers_owner_id ON trackers(owner_id)`,
		`
CREATE TABLE IF NOT EXISTS fare_alerts (
  id BIGSERIAL PRIMARY KEY,
  tracker_id BIGINT NOT NULL REFERENCES trackers(id) ON DELETE CASCADE,
  owner_id TEXT NOT NULL,
  channel_id TEXT NOT NULL DEFAULT '',
  origin TEXT NOT NULL,
  destination TEXT NOT NULL,
  travel_date DATE NOT NULL,
  price_cents BIGINT NOT NULL,
  max_price_cents BIGINT NOT NULL,
  stops INT NOT NULL DEFAULT 0,
  price_level TEXT NOT NULL DEFAULT '',
  checked_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_fare_alerts_tracker_id_created_at ON fare_alerts(tracker_id, created_at DESC)`,
		// Broker redelivery must not duplicate alert-log rows.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_fare_alerts_dedup ON fare_alerts(tracker_id, travel_date, price_cents, checked_at)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
