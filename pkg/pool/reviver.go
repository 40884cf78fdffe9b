package pool

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Reviver periodically reinstates exhausted accounts on a cron schedule.
// The upstream's rate-limit reset timing is undocumented, so revival is
// strictly opt-in: without a schedule the pool shrinks monotonically
// until restart, exactly like the original design.
type Reviver struct {
	pool     *Pool
	schedule string
	logger   zerolog.Logger
	cron     *cron.Cron
}

// NewReviver creates a reviver for the given cron expression (standard
// five-field syntax, e.g. "0 0 * * *" for midnight).
func NewReviver(p *Pool, schedule string, logger zerolog.Logger) (*Reviver, error) {
	if schedule == "" {
		return nil, fmt.Errorf("revive schedule is empty")
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid revive schedule %q: %w", schedule, err)
	}

	return &Reviver{
		pool:     p,
		schedule: schedule,
		logger:   logger,
	}, nil
}

// Run schedules revival sweeps until the context is cancelled
func (r *Reviver) Run(ctx context.Context) error {
	r.cron = cron.New()
	if _, err := r.cron.AddFunc(r.schedule, func() {
		revived := r.pool.Revive()
		r.logger.Info().
			Int("revived", revived).
			Str("schedule", r.schedule).
			Msg("Pool revival sweep complete")
	}); err != nil {
		return fmt.Errorf("failed to schedule revival: %w", err)
	}

	r.cron.Start()
	r.logger.Info().Str("schedule", r.schedule).Msg("Pool reviver started")

	<-ctx.Done()

	stopCtx := r.cron.Stop()
	<-stopCtx.Done()
	return nil
}
