package poll

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Tier applies Delay to every attempt numbered below Below. A Below of zero
// marks the open-ended final tier.
type Tier struct {
	Below int
	Delay time.Duration
}

// Schedule is an ordered list of tiers, evaluated first match wins.
type Schedule []Tier

// ResourceImportSchedule is used while waiting on ImportResources batches.
var ResourceImportSchedule = Schedule{
	{Below: 10, Delay: 5 * time.Second},
	{Below: 30, Delay: 60 * time.Second},
	{Below: 0, Delay: 600 * time.Second},
}

// CatalogImportSchedule is used while waiting on catalog imports submitted
// through the gateway.
var CatalogImportSchedule = Schedule{
	{Below: 10, Delay: 2 * time.Second},
	{Below: 30, Delay: 30 * time.Second},
	{Below: 0, Delay: 300 * time.Second},
}

// Delay returns the sleep before re-polling after attempt (1-indexed).
func (s Schedule) Delay(attempt int) time.Duration {
	if len(s) == 0 {
		return 0
	}
	for _, t := range s {
		if t.Below == 0 || attempt < t.Below {
			return t.Delay
		}
	}
	return s[len(s)-1].Delay
}

// BackOff returns a fresh backoff.BackOff walking the schedule. It never
// returns backoff.Stop; callers bound the wait with a context.
func (s Schedule) BackOff() backoff.BackOff {
	return &tieredBackOff{schedule: s}
}

type tieredBackOff struct {
	schedule Schedule
	attempt  int
}

func (b *tieredBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.schedule.Delay(b.attempt)
}

func (b *tieredBackOff) Reset() {
	b.attempt = 0
}
