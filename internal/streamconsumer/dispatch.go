package streamconsumer

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// OutcomeKind mirrors the use-case Result kinds one level up, collapsed
// to what the dispatch table of spec.md §4.7 needs to decide on.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeIgnored
	OutcomeError
	OutcomeReplay
)

// Outcome is what a HandlerFunc returns after executing the parsed
// envelope against the matching use case.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

// dispatch implements the result table of spec.md §4.7: Success,
// Ignored and Error all ack and clear the replay counter; Replay does
// not ack, and either reschedules or, past maxReplayAttempts, acks and
// counts as an error.
func (c *Consumer) dispatch(ctx context.Context, msg redis.XMessage, payload []byte, outcome Outcome) {
	switch outcome.Kind {
	case OutcomeSuccess:
		c.processed.Add(1)
		c.replayCount.Delete(msg.ID)
		c.ack(ctx, msg.ID)
	case OutcomeIgnored:
		c.replayCount.Delete(msg.ID)
		c.ack(ctx, msg.ID)
	case OutcomeError:
		c.errCount.Add(1)
		c.replayCount.Delete(msg.ID)
		c.ack(ctx, msg.ID)
		c.forwardToDLQ(ctx, msg, payload, outcome.Reason)
	case OutcomeReplay:
		c.handleReplay(ctx, msg, payload, outcome)
	}
}

func (c *Consumer) handleReplay(ctx context.Context, msg redis.XMessage, payload []byte, outcome Outcome) {
	attempts := 1
	if v, ok := c.replayCount.Load(msg.ID); ok {
		attempts = v.(int) + 1
	}
	c.replayCount.Store(msg.ID, attempts)

	if attempts >= c.cfg.MaxReplayAttempts {
		c.errCount.Add(1)
		c.replayCount.Delete(msg.ID)
		c.ack(ctx, msg.ID)
		c.forwardToDLQ(ctx, msg, payload, "replay attempts exhausted: "+outcome.Reason)
		return
	}

	delay := time.Duration(c.cfg.ReplayDelaySeconds) * time.Second
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		select {
		case <-time.After(delay):
		case <-c.stopCh:
			return
		}
		if !c.running.Load() {
			return
		}
		result := c.safeHandle(ctx, payload)
		c.dispatch(ctx, msg, payload, result)
	}()
}
