package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/FareWatch/internal/broker/messages"
	"github.com/BearBump/FareWatch/internal/integrations/flights"
	"github.com/BearBump/FareWatch/internal/models"
	"github.com/BearBump/FareWatch/internal/sampling"
	"github.com/BearBump/FareWatch/internal/storage/pgtracker"
)

type Repository interface {
	ClaimDueTrackers(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Tracker, error)
	ApplyCheckUpdate(ctx context.Context, upd pgtracker.CheckUpdate) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Poller struct {
	repo     Repository
	flights  flights.Client
	producer Producer
	rl       RateLimiter

	topic string

	planner *Planner

	pollInterval       time.Duration
	batchSize          int
	concurrency        int
	lease              time.Duration
	rateLimitPerMinute int64

	sampleBudget int
	cooldown     time.Duration

	publishRetryWait time.Duration

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalProcessed      atomic.Int64
	totalErrors         atomic.Int64
	totalAlerts         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, fc flights.Client, producer Producer, rl RateLimiter, topic string) *Poller {
	return &Poller{
		repo: repo, flights: fc, producer: producer, rl: rl, topic: topic,
		planner:            DefaultPlanner(),
		pollInterval:       30 * time.Second,
		batchSize:          100,
		concurrency:        4,
		lease:              10 * time.Minute,
		rateLimitPerMinute: 60,
		sampleBudget:       5,
		// The cooldown must outlast a check interval, or an unchanged fare
		// re-alerts on every cycle.
		cooldown:          24 * time.Hour,
		publishRetryWait:  150 * time.Millisecond,
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (p *Poller) WithSettings(pollInterval time.Duration, batchSize, concurrency int, lease time.Duration, rlPerMin int64) *Poller {
	if pollInterval > 0 {
		p.pollInterval = pollInterval
	}
	if batchSize > 0 {
		p.batchSize = batchSize
	}
	if concurrency > 0 {
		p.concurrency = concurrency
	}
	if lease > 0 {
		p.lease = lease
	}
	if rlPerMin > 0 {
		p.rateLimitPerMinute = rlPerMin
	}
	return p
}

func (p *Poller) WithPlanner(cfg PlannerConfig) *Poller {
	p.planner = NewPlanner(cfg, nil)
	return p
}

func (p *Poller) WithCheckPolicy(sampleBudget int, cooldown time.Duration) *Poller {
	if sampleBudget > 0 {
		p.sampleBudget = sampleBudget
	}
	if cooldown > 0 {
		p.cooldown = cooldown
	}
	return p
}

// Trigger forces an immediate poll cycle (best-effort, non-blocking).
func (p *Poller) Trigger() {
	p.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed   int64      `json:"totalClaimed"`
	TotalProcessed int64      `json:"totalProcessed"`
	TotalErrors    int64      `json:"totalErrors"`
	TotalAlerts    int64      `json:"totalAlerts"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (p *Poller) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, p.startedAtUnixNano).UTC(),
		TotalClaimed:   p.totalClaimed.Load(),
		TotalProcessed: p.totalProcessed.Load(),
		TotalErrors:    p.totalErrors.Load(),
		TotalAlerts:    p.totalAlerts.Load(),
		InFlight:       p.inFlight.Load(),
	}
	if n := p.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := p.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	p.lastErrorMu.Lock()
	st.LastError = p.lastError
	p.lastErrorMu.Unlock()
	return st
}

func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.runOnce(ctx)
		case <-p.triggerCh:
			p.runOnce(ctx)
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	p.lastCycleUnixNano.Store(now.UnixNano())

	items, err := p.repo.ClaimDueTrackers(ctx, now, p.batchSize, p.lease)
	if err != nil {
		slog.Error("claim due trackers", "error", err.Error())
		p.setLastError(err)
		return
	}
	p.totalClaimed.Add(int64(len(items)))

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for _, tr := range items {
		sem <- struct{}{}
		wg.Add(1)
		trCopy := tr
		p.inFlight.Add(1)
		go func() {
			defer func() {
				p.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := p.processOne(ctx, trCopy); err != nil {
				p.totalErrors.Add(1)
				p.setLastError(err)
				slog.Error("process tracker", "tracker_id", trCopy.ID, "error", err.Error())
			}
			p.totalProcessed.Add(1)
		}()
	}
	wg.Wait()
}

func (p *Poller) setLastError(err error) {
	p.lastErrorMu.Lock()
	p.lastError = err.Error()
	p.lastErrorMu.Unlock()
}

// processOne runs one tracker through the full pipeline: sample dates, query
// quotes, evaluate, publish the alert, settle. Failures here never touch
// sibling trackers.
func (p *Poller) processOne(ctx context.Context, tr *models.Tracker) error {
	now := time.Now().UTC()
	upd := pgtracker.CheckUpdate{TrackerID: tr.ID, CheckedAt: now}

	if tr.StaleAt(now) {
		slog.Info("tracker date range exhausted", "tracker_id", tr.ID,
			"origin", tr.Origin, "destination", tr.Destination)
		upd.NextCheckAt = now.Add(p.planner.StaleDelay())
		return p.repo.ApplyCheckUpdate(ctx, upd)
	}

	dates := sampling.Dates(tr.StartDate, tr.EndDate, now, p.sampleBudget, tr.CheckCycle)

	var samples []QuoteSample
	var lastErr error
	failed := 0
	for _, d := range dates {
		p.waitRateLimit(ctx, now)

		q, err := p.flights.Quotes(ctx, flights.Request{
			Origin:      tr.Origin,
			Destination: tr.Destination,
			Date:        d,
			Adults:      tr.Adults,
			SeatClass:   tr.SeatClass,
			MaxStops:    tr.MaxStops,
		})
		if err != nil {
			failed++
			lastErr = err
			slog.Warn("quote query failed", "tracker_id", tr.ID,
				"date", d.Format("2006-01-02"), "error", err.Error())
			continue
		}
		if s, ok := BestSample(d, q, tr.MaxStops); ok {
			samples = append(samples, s)
		}
	}

	if len(dates) > 0 && failed == len(dates) {
		e := lastErr.Error()
		upd.Error = &e
		upd.NextCheckAt = now.Add(p.planner.BackoffDelay(tr.CheckFailCount + 1))
		return p.repo.ApplyCheckUpdate(ctx, upd)
	}

	ev := Evaluate(tr, samples, now, p.cooldown)
	upd.NextCheckAt = now.Add(p.planner.NextCheckDelay())
	if ev.Found {
		best := ev.BestPriceCents
		bestDate := ev.BestDate
		upd.BestPriceCents = &best
		upd.BestPriceDate = &bestDate
	}

	if ev.Notify {
		if err := p.publishAlert(ctx, tr, ev, now); err != nil {
			// The best-seen price still settles; with no notification record
			// advanced, the same fare re-alerts next cycle.
			slog.Error("publish fare alert", "tracker_id", tr.ID, "error", err.Error())
		} else {
			p.totalAlerts.Add(1)
			notified := ev.BestPriceCents
			upd.NotifiedPriceCents = &notified
			upd.NotifiedAt = &now
		}
	}

	return p.repo.ApplyCheckUpdate(ctx, upd)
}

func (p *Poller) waitRateLimit(ctx context.Context, now time.Time) {
	if p.rl == nil || p.rateLimitPerMinute <= 0 {
		return
	}
	minuteKey := fmt.Sprintf("rl:flights:%s", now.Format("200601021504"))
	allowed, n, err := p.rl.Allow(ctx, minuteKey, p.rateLimitPerMinute, 70*time.Second)
	if err != nil {
		slog.Warn("rate limiter unavailable", "error", err.Error())
		return
	}
	if !allowed {
		// Over the minute budget: back off a little before hitting the provider.
		slog.Warn("provider rate limit exceeded", "count", n)
		time.Sleep(500 * time.Millisecond)
	}
}

func (p *Poller) publishAlert(ctx context.Context, tr *models.Tracker, ev Evaluation, now time.Time) error {
	msg := messages.FareAlert{
		TrackerID:     tr.ID,
		OwnerID:       tr.OwnerID,
		ChannelID:     tr.ChannelID,
		Origin:        tr.Origin,
		Destination:   tr.Destination,
		TravelDate:    ev.BestDate.Format("2006-01-02"),
		PriceCents:    ev.BestPriceCents,
		MaxPriceCents: tr.MaxPriceCents,
		Stops:         ev.Stops,
		PriceLevel:    ev.PriceLevel,
		CheckedAt:     now,
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal fare alert")
	}

	key := []byte(fmt.Sprintf("%d", tr.ID))
	// Kafka may not be ready right after compose startup; a short retry
	// keeps a transient broker hiccup from eating the alert.
	var pubErr error
	for i := 0; i < 10; i++ {
		if err := p.producer.Publish(ctx, p.topic, key, b); err == nil {
			return nil
		} else {
			pubErr = err
		}
		select {
		case <-ctx.Done():
			return pubErr
		case <-time.After(time.Duration(i+1) * p.publishRetryWait):
		}
	}
	return pubErr
}
