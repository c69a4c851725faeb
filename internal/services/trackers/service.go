package trackers

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/FareWatch/internal/broker/messages"
	"github.com/BearBump/FareWatch/internal/cache"
	"github.com/BearBump/FareWatch/internal/models"
)

type Repository interface {
	CreateTracker(ctx context.Context, in models.TrackerCreateInput) (*models.Tracker, error)
	GetTrackersByIDs(ctx context.Context, ids []uint64) ([]*models.Tracker, error)
	ListTrackersByOwner(ctx context.Context, ownerID string) ([]*models.Tracker, error)
	RemoveTracker(ctx context.Context, id uint64, ownerID string) error
	RefreshTracker(ctx context.Context, id uint64) error
	InsertFareAlert(ctx context.Context, a *models.FareAlert) error
	ListFareAlerts(ctx context.Context, trackerID uint64, limit, offset int) ([]*models.FareAlert, error)
}

type Service struct {
	repo       Repository
	cache      cache.BytesCache
	currentTTL time.Duration
	now        func() time.Time
}

func New(repo Repository, c cache.BytesCache, currentTTL time.Duration) *Service {
	return &Service{repo: repo, cache: c, currentTTL: currentTTL, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the service clock; date-range resolution and staleness
// checks become deterministic in tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// CreateParams is the command layer's raw request: dates still unresolved,
// nothing trusted yet.
type CreateParams struct {
	OwnerID   string
	ChannelID string

	Origin      string
	Destination string

	// StartDate is "YYYY-MM-DD" or the "this_month" shorthand; Days is the
	// range length (ignored for "this_month", default 30).
	StartDate string
	Days      int

	MaxPriceCents int64
	Adults        int32
	SeatClass     string
	MaxStops      *int32
}

const (
	StartDateThisMonth = "this_month"

	defaultRangeDays = 30
	maxRangeDays     = 366
	maxAdults        = 9
)

var iataRe = regexp.MustCompile(`^[A-Z]{3}$`)

// CreateTracker validates params at the boundary, resolves the date range to
// explicit [start, end) bounds and writes the tracker. Downstream components
// only ever see concrete ranges.
func (s *Service) CreateTracker(ctx context.Context, p CreateParams) (*models.Tracker, error) {
	in, err := s.resolveParams(p)
	if err != nil {
		return nil, err
	}
	return s.repo.CreateTracker(ctx, in)
}

func (s *Service) resolveParams(p CreateParams) (models.TrackerCreateInput, error) {
	var in models.TrackerCreateInput

	if p.OwnerID == "" {
		return in, invalid("ownerId is required")
	}

	origin := strings.ToUpper(strings.TrimSpace(p.Origin))
	destination := strings.ToUpper(strings.TrimSpace(p.Destination))
	if !iataRe.MatchString(origin) {
		return in, invalid("origin must be a 3-letter airport code")
	}
	if !iataRe.MatchString(destination) {
		return in, invalid("destination must be a 3-letter airport code")
	}
	if origin == destination {
		return in, invalid("origin and destination must differ")
	}

	if p.MaxPriceCents <= 0 {
		return in, invalid("maxPriceCents must be positive")
	}

	adults := p.Adults
	if adults == 0 {
		adults = 1
	}
	if adults < 1 || adults > maxAdults {
		return in, invalid("adults must be between 1 and %d", maxAdults)
	}

	seatClass := p.SeatClass
	if seatClass == "" {
		seatClass = models.SeatClassEconomy
	}
	if !models.ValidSeatClass(seatClass) {
		return in, invalid("seatClass must be one of economy, premium-economy, business, first")
	}

	if p.MaxStops != nil && (*p.MaxStops < 0 || *p.MaxStops > 2) {
		return in, invalid("maxStops must be 0, 1 or 2")
	}

	start, end, err := s.resolveDateRange(p.StartDate, p.Days)
	if err != nil {
		return in, err
	}

	in = models.TrackerCreateInput{
		OwnerID:       p.OwnerID,
		ChannelID:     p.ChannelID,
		Origin:        origin,
		Destination:   destination,
		StartDate:     start,
		EndDate:       end,
		Adults:        adults,
		SeatClass:     seatClass,
		MaxStops:      p.MaxStops,
		MaxPriceCents: p.MaxPriceCents,
	}
	return in, nil
}

// resolveDateRange turns the shorthand into explicit [start, end) bounds.
// "this_month" covers the whole current calendar month.
func (s *Service) resolveDateRange(startDate string, days int) (time.Time, time.Time, error) {
	now := s.now()
	today := models.Midnight(now)

	if startDate == "" || strings.EqualFold(startDate, StartDateThisMonth) {
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, 0)
		if !end.After(today) {
			return time.Time{}, time.Time{}, invalid("date range is entirely in the past")
		}
		return start, end, nil
	}

	start, err := time.ParseInLocation("2006-01-02", startDate, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, invalid("startDate must be YYYY-MM-DD or %q", StartDateThisMonth)
	}
	if days == 0 {
		days = defaultRangeDays
	}
	if days < 1 || days > maxRangeDays {
		return time.Time{}, time.Time{}, invalid("days must be between 1 and %d", maxRangeDays)
	}
	end := start.AddDate(0, 0, days)
	if !end.After(today) {
		return time.Time{}, time.Time{}, invalid("date range is entirely in the past")
	}
	return start, end, nil
}

func invalid(format string, args ...any) error {
	return errors.Wrap(models.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func (s *Service) GetTrackersByIDs(ctx context.Context, ids []uint64) ([]*models.Tracker, error) {
	if len(ids) == 0 {
		return []*models.Tracker{}, nil
	}

	// Best-effort cache of the current tracker state as JSON; TTL bounds how
	// stale a cached row can get relative to worker settles.
	miss := make([]uint64, 0, len(ids))
	got := make(map[uint64]*models.Tracker, len(ids))

	if s.cache != nil && s.currentTTL > 0 {
		for _, id := range ids {
			key := currentKey(id)
			b, ok, err := s.cache.Get(ctx, key)
			if err != nil || !ok {
				miss = append(miss, id)
				continue
			}
			var t models.Tracker
			if json.Unmarshal(b, &t) != nil {
				miss = append(miss, id)
				continue
			}
			got[id] = &t
		}
	} else {
		miss = ids
	}

	if len(miss) > 0 {
		fromDB, err := s.repo.GetTrackersByIDs(ctx, miss)
		if err != nil {
			return nil, err
		}
		for _, t := range fromDB {
			got[t.ID] = t
			if s.cache != nil && s.currentTTL > 0 {
				b, _ := json.Marshal(t)
				_ = s.cache.Set(ctx, currentKey(t.ID), b, s.currentTTL)
			}
		}
	}

	out := make([]*models.Tracker, 0, len(ids))
	for _, id := range ids {
		if t, ok := got[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Service) GetTracker(ctx context.Context, id uint64) (*models.Tracker, error) {
	if id == 0 {
		return nil, invalid("trackerId is required")
	}
	ts, err := s.GetTrackersByIDs(ctx, []uint64{id})
	if err != nil {
		return nil, err
	}
	if len(ts) == 0 {
		return nil, models.ErrNotFound
	}
	return ts[0], nil
}

func (s *Service) ListTrackers(ctx context.Context, ownerID string) ([]*models.Tracker, error) {
	if ownerID == "" {
		return nil, invalid("ownerId is required")
	}
	return s.repo.ListTrackersByOwner(ctx, ownerID)
}

func (s *Service) RemoveTracker(ctx context.Context, id uint64, ownerID string) error {
	if id == 0 {
		return invalid("trackerId is required")
	}
	if ownerID == "" {
		return invalid("ownerId is required")
	}
	return s.repo.RemoveTracker(ctx, id, ownerID)
}

func (s *Service) RefreshTracker(ctx context.Context, id uint64) error {
	if id == 0 {
		return invalid("trackerId is required")
	}
	return s.repo.RefreshTracker(ctx, id)
}

func (s *Service) ListFareAlerts(ctx context.Context, trackerID uint64, limit, offset int) ([]*models.FareAlert, error) {
	if trackerID == 0 {
		return nil, invalid("trackerId is required")
	}
	return s.repo.ListFareAlerts(ctx, trackerID, limit, offset)
}

// ApplyAlert ingests a consumed broker alert into the durable alert log.
func (s *Service) ApplyAlert(ctx context.Context, msg messages.FareAlert) error {
	if msg.TrackerID == 0 {
		return errors.New("tracker_id is required")
	}
	travelDate, err := time.ParseInLocation("2006-01-02", msg.TravelDate, time.UTC)
	if err != nil {
		return errors.Wrap(err, "parse travel_date")
	}
	checkedAt := msg.CheckedAt
	if checkedAt.IsZero() {
		checkedAt = s.now()
	}

	return s.repo.InsertFareAlert(ctx, &models.FareAlert{
		TrackerID:     msg.TrackerID,
		OwnerID:       msg.OwnerID,
		ChannelID:     msg.ChannelID,
		Origin:        msg.Origin,
		Destination:   msg.Destination,
		TravelDate:    travelDate,
		PriceCents:    msg.PriceCents,
		MaxPriceCents: msg.MaxPriceCents,
		Stops:         msg.Stops,
		PriceLevel:    msg.PriceLevel,
		CheckedAt:     checkedAt,
	})
}

func currentKey(id uint64) string {
	return fmt.Sprintf("tracker:%d:current", id)
}
