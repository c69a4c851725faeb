package poller

import (
	"math/rand"
	"time"
)

type Rand interface {
	Intn(n int) int
}

type PlannerConfig struct {
	// How long after a successful check a tracker becomes due again.
	// Jitter spreads trackers created at the same moment across the window
	// [CheckInterval, CheckInterval+CheckJitter).
	CheckInterval time.Duration // default: 6 hours
	CheckJitter   time.Duration // default: 0

	// Stale trackers (date range entirely past) are re-visited rarely, just
	// to keep reporting them as stale; they are never queried.
	StaleDelay time.Duration // default: 7 days

	Backoff1 time.Duration // default: 15 minutes
	Backoff2 time.Duration // default: 1 hour
	Backoff3 time.Duration // default: 3 hours
	Backoff4 time.Duration // default: 6 hours
}

func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		CheckInterval: 6 * time.Hour,
		StaleDelay:    7 * 24 * time.Hour,

		Backoff1: 15 * time.Minute,
		Backoff2: 1 * time.Hour,
		Backoff3: 3 * time.Hour,
		Backoff4: 6 * time.Hour,
	}
}

type Planner struct {
	cfg PlannerConfig
	r   Rand
}

func NewPlanner(cfg PlannerConfig, r Rand) *Planner {
	def := DefaultPlannerConfig()
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if cfg.CheckJitter < 0 {
		cfg.CheckJitter = 0
	}
	if cfg.StaleDelay <= 0 {
		cfg.StaleDelay = def.StaleDelay
	}
	if cfg.Backoff1 <= 0 {
		cfg.Backoff1 = def.Backoff1
	}
	if cfg.Backoff2 <= 0 {
		cfg.Backoff2 = def.Backoff2
	}
	if cfg.Backoff3 <= 0 {
		cfg.Backoff3 = def.Backoff3
	}
	if cfg.Backoff4 <= 0 {
		cfg.Backoff4 = def.Backoff4
	}
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Planner{cfg: cfg, r: r}
}

func DefaultPlanner() *Planner {
	return NewPlanner(DefaultPlannerConfig(), nil)
}

func (p *Planner) NextCheckDelay() time.Duration {
	d := p.cfg.CheckInterval
	if p.cfg.CheckJitter > 0 {
		sec := int(p.cfg.CheckJitter.Seconds())
		if sec > 0 {
			d += time.Duration(p.r.Intn(sec)) * time.Second
		}
	}
	return d
}

func (p *Planner) StaleDelay() time.Duration {
	return p.cfg.StaleDelay
}

func (p *Planner) BackoffDelay(nextFailCount int32) time.Duration {
	switch {
	case nextFailCount <= 1:
		return p.cfg.Backoff1
	case nextFailCount == 2:
		return p.cfg.Backoff2
	case nextFailCount == 3:
		return p.cfg.Backoff3
	default:
		return p.cfg.Backoff4
	}
}
