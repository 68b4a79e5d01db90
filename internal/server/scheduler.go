package server

import (
	"log"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/tunescope/enricher/internal/cache"
	"github.com/tunescope/enricher/internal/ratelimit"
)

// Scheduler runs periodic housekeeping: dropping expired rate-limit
// windows and sweeping expired entries out of the in-memory cache.
// Cache is nil when the redis backend is active, Redis expires keys on
// its own.
type Scheduler struct {
	CronSpec string
	Limiters []*ratelimit.Limiter
	Cache    *cache.Memory
	Stop     chan struct{}

	logger *log.Logger
	now    func() time.Time
}

func (s *Scheduler) Start() {
	if s.logger == nil {
		s.logger = log.New(log.Writer(), "[SCHED] ", log.LstdFlags)
	}
	if s.now == nil {
		s.now = time.Now
	}
	expr, err := cronexpr.Parse(s.CronSpec)
	if err != nil {
		s.logger.Printf("invalid cron spec %q, falling back to hourly: %v", s.CronSpec, err)
		expr = cronexpr.MustParse("0 * * * *")
	}
	go func() {
		for {
			next := expr.Next(s.now())
			timer := time.NewTimer(next.Sub(s.now()))
			select {
			case <-s.Stop:
				timer.Stop()
				return
			case <-timer.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	for _, l := range s.Limiters {
		l.Cleanup()
	}
	if s.Cache != nil {
		if n := s.Cache.Sweep(); n > 0 {
			s.logger.Printf("swept %d expired cache entries", n)
		}
	}
}
