package control

import (
	"context"
	"time"
)

// trackFleet polls source for live workers and czars and folds the result
// into the registry directory via ApplyWorkerHeartbeat/ApplyCzarHeartbeat,
// the same "update matching record, or append if auto-register" rule
// described for Configuration. A poll error is logged, not fatal: the
// directory simply keeps its last known state until the next tick.
func (c *Controller) trackFleet(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	settings := c.cfg.Settings()

	workers, err := c.source.LiveWorkers(ctx)
	if err != nil {
		c.logger.Warn("worker liveness poll failed", "error", err)
	} else if err := c.cfg.ApplyWorkerHeartbeat(ctx, workers, settings.AutoRegisterWorkers); err != nil {
		c.logger.Error("apply worker heartbeat failed", "error", err)
	}

	czars, err := c.source.LiveCzars(ctx)
	if err != nil {
		c.logger.Warn("czar liveness poll failed", "error", err)
	} else if err := c.cfg.ApplyCzarHeartbeat(ctx, czars, settings.AutoRegisterCzars); err != nil {
		c.logger.Error("apply czar heartbeat failed", "error", err)
	}
}
