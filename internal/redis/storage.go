package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/life2you_mini/poolcore/internal/model"
)

// 存储键
const (
	SnapshotKey     = "detectors:snapshot"
	SnapshotLockKey = "detectors:snapshot:lock"
	LatestResultKey = "results:latest"

	snapshotLockTTL = 10 * time.Second
)

// ErrSnapshotLocked 另一个实例正在写快照
var ErrSnapshotLocked = errors.New("快照正在被其他实例写入")

// StorageClient Redis存储客户端封装
type StorageClient struct {
	client       *redis.Client
	queueService *QueueService
	keyPrefix    string
}

// NewStorageClient 连接 Redis 并创建存储客户端
func NewStorageClient(ctx context.Context, opts ClientOptions, keyPrefix string) (*StorageClient, error) {
	client, err := NewRedisClient(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("无法连接到Redis: %w", err)
	}
	return NewStorageClientFromClient(client, keyPrefix), nil
}

// NewStorageClientFromClient 使用已有连接创建存储客户端
func NewStorageClientFromClient(client *redis.Client, keyPrefix string) *StorageClient {
	return &StorageClient{
		client:       client,
		queueService: NewQueueService(client, keyPrefix),
		keyPrefix:    keyPrefix,
	}
}

// GetClient 返回原始的Redis客户端
func (s *StorageClient) GetClient() *redis.Client {
	return s.client
}

// GetQueueService 返回队列服务
func (s *StorageClient) GetQueueService() *QueueService {
	return s.queueService
}

// Close 关闭Redis连接
func (s *StorageClient) Close() error {
	return s.client.Close()
}

func (s *StorageClient) key(name string) string {
	return s.keyPrefix + name
}

// SaveSnapshot 在分布式锁保护下保存检测器快照
func (s *StorageClient) SaveSnapshot(ctx context.Context, data []byte) error {
	lockKey := s.key(SnapshotLockKey)
	token := uuid.NewString()
	ok, err := CreateLock(ctx, s.client, lockKey, token, snapshotLockTTL)
	if err != nil {
		return fmt.Errorf("获取快照锁失败: %w", err)
	}
	if !ok {
		return ErrSnapshotLocked
	}
	defer ReleaseLock(context.WithoutCancel(ctx), s.client, lockKey, token)

	if err := s.client.Set(ctx, s.key(SnapshotKey), data, 0).Err(); err != nil {
		return fmt.Errorf("保存检测器快照失败: %w", err)
	}
	return nil
}

// LoadSnapshot 读取检测器快照，不存在时返回 nil, nil
func (s *StorageClient) LoadSnapshot(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(SnapshotKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取检测器快照失败: %w", err)
	}
	return data, nil
}

// SaveLatestResult 按池子保存最近一次分析结果
func (s *StorageClient) SaveLatestResult(ctx context.Context, res *model.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("序列化分析结果失败: %w", err)
	}
	return s.client.HSet(ctx, s.key(LatestResultKey), res.PoolID, data).Err()
}

// GetLatestResult 读取池子最近一次分析结果，不存在时返回 nil, nil
func (s *StorageClient) GetLatestResult(ctx context.Context, poolID string) (*model.Result, error) {
	data, err := s.client.HGet(ctx, s.key(LatestResultKey), poolID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var res model.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("解析分析结果失败: %w", err)
	}
	return &res, nil
}
