package streamconsumer

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// forwardToDLQ appends the failed message to <stream>:<dlqSuffix>, per
// spec.md §4.7. Routing is best-effort: a failure here is logged but
// never blocks the ack that already happened.
func (c *Consumer) forwardToDLQ(ctx context.Context, msg redis.XMessage, payload []byte, reason string) {
	if c.cfg.DLQSuffix == "" {
		return
	}
	dlqStream := c.Stream + ":" + c.cfg.DLQSuffix
	err := c.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: dlqStream,
		Values: map[string]interface{}{
			"originalMessageId": msg.ID,
			"originalStream":    c.Stream,
			"error":             reason,
			"data":              string(payload),
		},
	}).Err()
	if err != nil {
		c.log.WithFields(map[string]interface{}{"stream": c.Stream, "dlq": dlqStream, "err": err}).Error("dlq forward failed")
	}
}
