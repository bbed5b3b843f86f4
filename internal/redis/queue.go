package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// 队列常量
const (
	QueueObservations = "observations"
	QueueResults      = "results"
	QueueAlerts       = "alerts"
)

// QueueService Redis队列服务，LPush 入队，BRPop 出队
type QueueService struct {
	client    *redis.Client
	keyPrefix string
}

// NewQueueService 创建新的队列服务
func NewQueueService(client *redis.Client, keyPrefix string) *QueueService {
	return &QueueService{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// 获取完整的队列名称
func (q *QueueService) getQueueKey(queue string) string {
	return fmt.Sprintf("%s%s", q.keyPrefix, queue)
}

// PushTask 将任务序列化为 JSON 推送到队列
func (q *QueueService) PushTask(ctx context.Context, queue string, task interface{}) error {
	taskData, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("序列化任务失败: %w", err)
	}
	return q.client.LPush(ctx, q.getQueueKey(queue), taskData).Err()
}

// PopTask 从队列中弹出任务（阻塞方式），超时返回 nil, nil
func (q *QueueService) PopTask(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	result, err := q.client.BRPop(ctx, timeout, q.getQueueKey(queue)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	// BRPop返回一个包含两个元素的数组：[queueName, value]
	if len(result) < 2 {
		return nil, fmt.Errorf("从队列获取的数据结构不正确")
	}
	return []byte(result[1]), nil
}

// RequeueTask 把已弹出的原始任务放回队列的出队端，下一次 PopTask 首先取到它
func (q *QueueService) RequeueTask(ctx context.Context, queue string, data []byte) error {
	return q.client.RPush(ctx, q.getQueueKey(queue), data).Err()
}

// GetQueueLength 获取队列长度
func (q *QueueService) GetQueueLength(ctx context.Context, queue string) (int64, error) {
	return q.client.LLen(ctx, q.getQueueKey(queue)).Result()
}

// ClearQueue 清空队列
func (q *QueueService) ClearQueue(ctx context.Context, queue string) error {
	return q.client.Del(ctx, q.getQueueKey(queue)).Err()
}
