package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/life2you_mini/poolcore/internal/export"
	"github.com/life2you_mini/poolcore/internal/model"
	"github.com/life2you_mini/poolcore/internal/redis"
)

const (
	defaultPopTimeout = 5 * time.Second
	errorBackoff      = 100 * time.Millisecond
)

// TaskQueue JSON 任务队列
type TaskQueue interface {
	PushTask(ctx context.Context, queue string, task interface{}) error
	PopTask(ctx context.Context, queue string, timeout time.Duration) ([]byte, error)
	RequeueTask(ctx context.Context, queue string, data []byte) error
}

// Analyzer 单条观测分析
type Analyzer interface {
	Analyze(ctx context.Context, obs model.Observation, strategies []model.Strategy) (*model.Result, error)
}

// ResultStore 按池子保存最近一次分析结果
type ResultStore interface {
	SaveLatestResult(ctx context.Context, res *model.Result) error
	GetLatestResult(ctx context.Context, poolID string) (*model.Result, error)
}

// QueueConsumer 从观测队列读取观测、分析并写回结果队列
type QueueConsumer struct {
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *zap.Logger
	queue      TaskQueue
	results    ResultStore
	exporter   *export.ParquetExporter
	orch       Analyzer
	strategies []model.Strategy
	popTimeout time.Duration
	wg         sync.WaitGroup
	isRunning  bool
	mutex      sync.Mutex
}

// NewQueueConsumer 创建队列消费者，results 与 exporter 可以为 nil
func NewQueueConsumer(
	parentCtx context.Context,
	logger *zap.Logger,
	queue TaskQueue,
	results ResultStore,
	exporter *export.ParquetExporter,
	orch Analyzer,
	strategies []model.Strategy,
) *QueueConsumer {
	ctx, cancel := context.WithCancel(parentCtx)
	return &QueueConsumer{
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger.With(zap.String("component", "queue_consumer")),
		queue:      queue,
		results:    results,
		exporter:   exporter,
		orch:       orch,
		strategies: strategies,
		popTimeout: defaultPopTimeout,
	}
}

// Start 启动消费协程
func (c *QueueConsumer) Start() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.isRunning {
		return fmt.Errorf("队列消费者已在运行")
	}
	c.logger.Info("启动队列消费者")
	c.isRunning = true

	c.wg.Add(1)
	go c.run()
	return nil
}

// Stop 停止消费并等待当前观测处理完成
func (c *QueueConsumer) Stop(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.isRunning {
		return nil
	}
	c.logger.Info("停止队列消费者")
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("队列消费者已停止")
	case <-ctx.Done():
		c.logger.Warn("队列消费者停止超时")
		return ctx.Err()
	}
	c.isRunning = false
	return nil
}

func (c *QueueConsumer) run() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Info("结束观测队列处理")
			return
		default:
		}

		if _, err := c.ProcessOne(c.ctx); err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Error("处理观测失败", zap.Error(err))
			time.Sleep(errorBackoff)
		}
	}
}

// ProcessOne 处理一条观测，队列为空时返回 false
func (c *QueueConsumer) ProcessOne(ctx context.Context) (bool, error) {
	data, err := c.queue.PopTask(ctx, redis.QueueObservations, c.popTimeout)
	if err != nil {
		return false, fmt.Errorf("从观测队列获取任务失败: %w", err)
	}
	if data == nil {
		return false, nil
	}

	var obs model.Observation
	if err := json.Unmarshal(data, &obs); err != nil {
		// 无法解析的消息直接丢弃
		c.logger.Error("解析观测失败", zap.Error(err), zap.Int("bytes", len(data)))
		return true, nil
	}

	res, err := c.orch.Analyze(ctx, obs, c.strategies)
	if err != nil {
		if ctx.Err() != nil {
			// 停止时放回已弹出的观测
			requeueErr := c.queue.RequeueTask(context.WithoutCancel(ctx), redis.QueueObservations, data)
			c.logger.Warn("分析被取消，观测放回队列",
				zap.String("pool_id", obs.PoolID),
				zap.String("observation_id", obs.ObservationID),
				zap.NamedError("requeue_error", requeueErr))
		}
		return true, fmt.Errorf("分析观测失败: %w", err)
	}

	if err := c.queue.PushTask(ctx, redis.QueueResults, res); err != nil {
		return true, fmt.Errorf("写入结果队列失败: %w", err)
	}
	if c.results != nil {
		if err := c.results.SaveLatestResult(ctx, res); err != nil {
			c.logger.Warn("保存最近结果失败", zap.String("pool_id", res.PoolID), zap.Error(err))
		}
	}
	if c.exporter != nil {
		c.exporter.Add(res)
	}

	c.logger.Debug("观测处理完成",
		zap.String("pool_id", res.PoolID),
		zap.String("observation_id", res.ObservationID),
		zap.Int("alerts", len(res.Alerts)))
	return true, nil
}
