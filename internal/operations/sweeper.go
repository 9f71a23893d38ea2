package operations

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	. "github.com/roelfdiedericks/voxnote/internal/logging"
)

// StartSweeper runs Sweep on the configured cron schedule until Close.
func (r *Registry) StartSweeper() error {
	c := cron.New()
	if _, err := c.AddFunc(r.cfg.SweepSchedule, func() { r.Sweep(time.Now()) }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", r.cfg.SweepSchedule, err)
	}

	r.mu.Lock()
	if r.closed || r.sweeper != nil {
		r.mu.Unlock()
		return nil
	}
	r.sweeper = c
	r.mu.Unlock()

	c.Start()
	L_debug("operations: sweeper started", "schedule", r.cfg.SweepSchedule)
	return nil
}
