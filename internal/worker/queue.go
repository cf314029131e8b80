package worker

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is the renderer poll queue. The API pushes renderer ids on
// job creation; the worker pops them and polls until terminal.
type RedisQueue struct {
	rdb       *redis.Client
	queueName string
}

func NewRedisQueue(rdb *redis.Client, queueName string) *RedisQueue {
	return &RedisQueue{rdb: rdb, queueName: queueName}
}

func (q *RedisQueue) Push(ctx context.Context, rendererID string) error {
	return q.rdb.LPush(ctx, q.queueName, rendererID).Err()
}

// Pop blocks until an element exists (BRPOP).
func (q *RedisQueue) Pop(ctx context.Context) (string, error) {
	res, err := q.rdb.BRPop(ctx, 0, q.queueName).Result()
	if err != nil {
		return "", err
	}
	if len(res) < 2 {
		return "", nil
	}
	return res[1], nil
}
