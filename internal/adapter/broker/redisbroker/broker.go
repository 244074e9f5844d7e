// Package redisbroker implements ports.TaskBroker with a Redis list as the
// task queue (BLPOP consumers) and a per-job pub/sub channel for results,
// so the chord pattern (spec.md §4.4) fans out across worker processes
// instead of staying confined to one.
package redisbroker

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
	"github.com/vasilev-labs/scrapecore/internal/core/ports"
)

// Broker implements ports.TaskBroker against Redis.
type Broker struct {
	client   *goredis.Client
	queueKey string
}

type wireTask struct {
	JobID      string   `json:"job_id"`
	Site       string   `json:"site"`
	URLs       []string `json:"urls"`
	ChunkIndex int      `json:"chunk_index"`
}

// New builds a Broker using queueKey as the Redis list holding pending
// tasks. Result pub/sub channels are derived per job as
// queueKey+":results:"+jobID.
func New(client *goredis.Client, queueKey string) *Broker {
	return &Broker{client: client, queueKey: queueKey}
}

var _ ports.TaskBroker = (*Broker)(nil)

func (b *Broker) resultChannel(jobID string) string {
	return fmt.Sprintf("%s:results:%s", b.queueKey, jobID)
}

// Dispatch pushes one task per chunk onto the queue.
func (b *Broker) Dispatch(ctx context.Context, job domain.ScrapeJob, chunks [][]string) error {
	for i, chunk := range chunks {
		encoded, err := json.Marshal(wireTask{JobID: job.ID, Site: job.Site, URLs: chunk, ChunkIndex: i})
		if err != nil {
			return err
		}
		if err := b.client.RPush(ctx, b.queueKey, encoded).Err(); err != nil {
			return &domain.StoreError{Op: "broker_dispatch", Cause: err}
		}
	}
	return nil
}

// Consume blocks on BLPOP, running handler for every chunk task, until ctx
// is cancelled.
func (b *Broker) Consume(ctx context.Context, handler func(ctx context.Context, task ports.ChunkTask) (domain.ChunkResult, error)) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		res, err := b.client.BLPop(ctx, 0, b.queueKey).Result()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &domain.StoreError{Op: "broker_consume", Cause: err}
		}
		if len(res) < 2 {
			continue
		}

		var wire wireTask
		if err := json.Unmarshal([]byte(res[1]), &wire); err != nil {
			continue
		}
		task := ports.ChunkTask{JobID: wire.JobID, Site: wire.Site, URLs: wire.URLs, ChunkIndex: wire.ChunkIndex}

		result, err := handler(ctx, task)
		if err != nil && len(result.Entries) == 0 {
			result = domain.ChunkResult{JobID: task.JobID, ChunkIndex: task.ChunkIndex}
		}
		if pubErr := b.PublishResult(ctx, result); pubErr != nil {
			return pubErr
		}
	}
}

// PublishResult publishes result on its job's pub/sub channel.
func (b *Broker) PublishResult(ctx context.Context, result domain.ChunkResult) error {
	encoded, err := json.Marshal(result)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.resultChannel(result.JobID), encoded).Err(); err != nil {
		return &domain.StoreError{Op: "broker_publish_result", Cause: err}
	}
	return nil
}

// Results subscribes to jobID's result channel and streams decoded
// ChunkResults until ctx is cancelled.
func (b *Broker) Results(ctx context.Context, jobID string) (<-chan domain.ChunkResult, error) {
	sub := b.client.Subscribe(ctx, b.resultChannel(jobID))
	raw := sub.Channel()

	out := make(chan domain.ChunkResult, 64)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-raw:
				if !ok {
					return
				}
				var result domain.ChunkResult
				if err := json.Unmarshal([]byte(msg.Payload), &result); err != nil {
					continue
				}
				select {
				case out <- result:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the underlying Redis client.
func (b *Broker) Close() error {
	return b.client.Close()
}
