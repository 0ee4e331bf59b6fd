// Package streamconsumer runs one independent fetch/process pipeline
// per transaction lifecycle stream on top of a Redis Streams consumer
// group, generalizing the single hard-coded service loop of the
// retrieved exchange-platform marketdata consumer into a reusable
// Consumer type parametrized by stream name and a HandlerFunc.
package streamconsumer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"portfolioprojector/internal/config"
	"portfolioprojector/internal/logging"
)

// State is the consumer's lifecycle state.
type State int32

const (
	Stopped State = iota
	Running
	Restarting
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Restarting:
		return "restarting"
	default:
		return "stopped"
	}
}

// HandlerFunc parses and processes the raw payload field of one message
// and returns the dispatch result that drives ack/replay/error handling.
type HandlerFunc func(ctx context.Context, payload []byte) Outcome

// RedisStreamClient is the subset of *redis.Client the consumer needs,
// narrowed for testability.
type RedisStreamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XPendingExt(ctx context.Context, a *redis.XPendingExtArgs) *redis.XPendingExtCmd
	XClaim(ctx context.Context, a *redis.XClaimArgs) *redis.XMessageSliceCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Consumer runs the fetch -> buffer -> process pipeline for a single
// stream, per spec.md §4.6.
type Consumer struct {
	Stream string
	cfg    config.ConsumerConfig
	redis  RedisStreamClient
	log    *logging.Logger
	handle HandlerFunc

	state       atomic.Int32
	running     atomic.Bool
	inFlight    atomic.Int64
	processed   atomic.Int64
	errCount    atomic.Int64
	replayCount sync.Map // messageID string -> int attempts

	bufferMu sync.RWMutex
	buffer   chan redis.XMessage

	stopCh chan struct{}
	wg     sync.WaitGroup
	reaper *cron.Cron
}

// New constructs a Consumer for stream, not yet started.
func New(stream string, cfg config.ConsumerConfig, redisClient RedisStreamClient, log *logging.Logger, handle HandlerFunc) *Consumer {
	return &Consumer{
		Stream: stream,
		cfg:    cfg,
		redis:  redisClient,
		log:    log,
		handle: handle,
		stopCh: make(chan struct{}),
	}
}

// State reports the consumer's current lifecycle state.
func (c *Consumer) State() State {
	return State(c.state.Load())
}

// Stats returns the processed/error/in-flight counters.
func (c *Consumer) Stats() (processed, errs, inFlight int64) {
	return c.processed.Load(), c.errCount.Load(), c.inFlight.Load()
}

// Start is idempotent: calling it on an already-running consumer is a
// no-op, per spec.md §4.6 ("start() is idempotent (CAS on a running
// flag)").
func (c *Consumer) Start(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return nil
	}

	if err := c.redis.XGroupCreateMkStream(ctx, c.Stream, c.cfg.Group, "0").Err(); err != nil && !isBusyGroup(err) {
		c.running.Store(false)
		return fmt.Errorf("create consumer group for %s: %w", c.Stream, err)
	}

	c.state.Store(int32(Running))
	c.wg.Add(1)
	go c.supervise(ctx)
	c.reaper = c.startReaper(ctx)
	return nil
}

// Stop flips the running flag; the fetch loop exits after its current
// batch is drained, per spec.md §5.
func (c *Consumer) Stop() {
	if !c.running.CompareAndSwap(true, false) {
		return
	}
	if c.reaper != nil {
		stopCtx := c.reaper.Stop()
		<-stopCtx.Done()
	}
	close(c.stopCh)
	c.wg.Wait()
	c.state.Store(int32(Stopped))
}

// supervise restarts the pipeline after ~5s on any unhandled
// termination, while running stays true.
func (c *Consumer) supervise(ctx context.Context) {
	defer c.wg.Done()
	for c.running.Load() {
		c.runPipeline(ctx)
		if !c.running.Load() {
			return
		}
		c.state.Store(int32(Restarting))
		c.log.WithFields(map[string]interface{}{"stream": c.Stream}).Warn("pipeline terminated, restarting in 5s")
		select {
		case <-time.After(5 * time.Second):
		case <-c.stopCh:
			return
		}
		c.state.Store(int32(Running))
	}
}

func (c *Consumer) runPipeline(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithFields(map[string]interface{}{"stream": c.Stream, "panic": r}).Error("stream pipeline panicked")
		}
	}()

	buffer := make(chan redis.XMessage, c.cfg.BufferSize)
	done := make(chan struct{})

	c.bufferMu.Lock()
	c.buffer = buffer
	c.bufferMu.Unlock()
	defer func() {
		c.bufferMu.Lock()
		c.buffer = nil
		c.bufferMu.Unlock()
	}()

	go func() {
		defer close(done)
		for msg := range buffer {
			c.processMessage(ctx, msg)
		}
	}()

	consumerName := c.cfg.ConsumerName
	fetchFailures := 0
	for c.running.Load() {
		select {
		case <-c.stopCh:
			close(buffer)
			<-done
			return
		case <-ctx.Done():
			close(buffer)
			<-done
			return
		default:
		}

		results, err := c.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: consumerName,
			Streams:  []string{c.Stream, ">"},
			Count:    c.cfg.ReadCount,
			Block:    time.Duration(c.cfg.BlockMs) * time.Millisecond,
		}).Result()

		if err != nil {
			if err == redis.Nil {
				fetchFailures = 0
				continue
			}
			fetchFailures++
			c.log.WithFields(map[string]interface{}{"stream": c.Stream, "err": err}).Warn("fetch failed")
			time.Sleep(time.Second)
			if fetchFailures >= 3 {
				fetchFailures = 0
			}
			continue
		}
		fetchFailures = 0

		for _, res := range results {
			for _, msg := range res.Messages {
				buffer <- msg
			}
		}
	}
	close(buffer)
	<-done
}

func (c *Consumer) processMessage(ctx context.Context, msg redis.XMessage) {
	c.inFlight.Add(1)
	defer c.inFlight.Add(-1)

	data, ok := msg.Values["payload"].(string)
	if !ok {
		c.log.WithFields(map[string]interface{}{"stream": c.Stream, "messageId": msg.ID}).Error("message missing payload field")
		c.ack(ctx, msg.ID)
		return
	}

	outcome := c.safeHandle(ctx, []byte(data))
	c.dispatch(ctx, msg, []byte(data), outcome)
}

// enqueue hands a reclaimed message to the same buffer the main fetch
// loop drains, so reaper-claimed messages are processed one at a time
// alongside freshly-fetched ones instead of concurrently with them.
// It reports whether the message was accepted.
func (c *Consumer) enqueue(ctx context.Context, msg redis.XMessage) bool {
	c.bufferMu.RLock()
	buffer := c.buffer
	c.bufferMu.RUnlock()
	if buffer == nil {
		return false
	}
	select {
	case buffer <- msg:
		return true
	case <-c.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func (c *Consumer) safeHandle(ctx context.Context, payload []byte) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = Outcome{Kind: OutcomeError, Reason: fmt.Sprintf("unexpected panic: %v", r)}
		}
	}()
	return c.handle(ctx, payload)
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.redis.XAck(ctx, c.Stream, c.cfg.Group, id).Err(); err != nil {
		c.log.WithFields(map[string]interface{}{"stream": c.Stream, "messageId": id, "err": err}).Error("ack failed")
	}
}

func isBusyGroup(err error) bool {
	return err != nil && err.Error() == "BUSYGROUP Consumer Group name already exists"
}
