package streamconsumer

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

// startReaper schedules a github.com/robfig/cron/v3 job that sweeps
// this stream's pending-entries list every reclaimInterval (default
// 30s) for messages idle past reclaimIdleThreshold and claims them
// under this consumer, per SPEC_FULL.md §4.6 — this recovers messages
// left pending by a peer consumer instance that crashed mid-message,
// supplementing (not replacing) the in-process replay counter of
// dispatch.go. Grounded on the XPendingExt/XClaim sweep in the
// retrieved exchange-platform marketdata.go's processPending, run here
// on a cron schedule instead of a bare time.Ticker.
func (c *Consumer) startReaper(ctx context.Context) *cron.Cron {
	interval := c.cfg.ReclaimInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	sched := cron.New(cron.WithParser(cron.NewParser(
		cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))
	spec := everySecondsSpec(interval)
	_, err := sched.AddFunc(spec, func() {
		if !c.running.Load() {
			return
		}
		c.reclaimStalePending(ctx)
	})
	if err != nil {
		c.log.WithFields(map[string]interface{}{"stream": c.Stream, "err": err}).Error("failed to schedule reclaim job")
		return nil
	}
	sched.Start()
	return sched
}

func (c *Consumer) reclaimStalePending(ctx context.Context) {
	idle := c.cfg.ReclaimIdleThreshold
	if idle <= 0 {
		idle = time.Duration(2*c.cfg.ReplayDelaySeconds) * time.Second
	}

	pending, err := c.redis.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.Stream,
		Group:  c.cfg.Group,
		Start:  "-",
		End:    "+",
		Count:  int64(c.cfg.ReadCount),
	}).Result()
	if err != nil {
		c.log.WithFields(map[string]interface{}{"stream": c.Stream, "err": err}).Warn("reclaim: XPendingExt failed")
		return
	}

	var staleIDs []string
	for _, entry := range pending {
		if entry.Idle >= idle {
			staleIDs = append(staleIDs, entry.ID)
		}
	}
	if len(staleIDs) == 0 {
		return
	}

	claimed, err := c.redis.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.Stream,
		Group:    c.cfg.Group,
		Consumer: c.cfg.ConsumerName,
		MinIdle:  idle,
		Messages: staleIDs,
	}).Result()
	if err != nil {
		c.log.WithFields(map[string]interface{}{"stream": c.Stream, "err": err}).Warn("reclaim: XClaim failed")
		return
	}

	for _, msg := range claimed {
		if !c.enqueue(ctx, msg) {
			return
		}
	}
}

// everySecondsSpec renders a cron spec that fires every n seconds,
// using the cron/v3 seconds-enabled parser configured above.
func everySecondsSpec(d time.Duration) string {
	secs := int(d.Seconds())
	if secs <= 0 {
		secs = 30
	}
	return "@every " + time.Duration(secs*int(time.Second)).String()
}
