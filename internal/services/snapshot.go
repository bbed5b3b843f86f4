package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/life2you_mini/poolcore/internal/alert"
	"github.com/life2you_mini/poolcore/internal/redis"
)

// SnapshotStore 检测器快照存储
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, data []byte) error
	LoadSnapshot(ctx context.Context) ([]byte, error)
}

// Snapshotter 定期保存告警引擎的检测器状态，启动时恢复
type Snapshotter struct {
	engine   *alert.Engine
	store    SnapshotStore
	interval time.Duration
	logger   *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSnapshotter 创建快照器
func NewSnapshotter(engine *alert.Engine, store SnapshotStore, interval time.Duration, logger *zap.Logger) *Snapshotter {
	return &Snapshotter{
		engine:   engine,
		store:    store,
		interval: interval,
		logger:   logger.With(zap.String("component", "snapshotter")),
	}
}

// Restore 从存储恢复检测器状态，没有快照时不做任何事
func (s *Snapshotter) Restore(ctx context.Context) error {
	data, err := s.store.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("读取检测器快照失败: %w", err)
	}
	if data == nil {
		s.logger.Info("没有可恢复的检测器快照")
		return nil
	}
	if err := s.engine.Restore(data); err != nil {
		return fmt.Errorf("恢复检测器快照失败: %w", err)
	}
	s.logger.Info("检测器快照已恢复", zap.Int("detectors", len(s.engine.Keys())))
	return nil
}

// Save 立即保存一次快照
func (s *Snapshotter) Save(ctx context.Context) error {
	data, err := s.engine.Snapshot()
	if err != nil {
		return fmt.Errorf("生成检测器快照失败: %w", err)
	}
	if err := s.store.SaveSnapshot(ctx, data); err != nil {
		return err
	}
	s.logger.Debug("检测器快照已保存", zap.Int("bytes", len(data)))
	return nil
}

// Start 按间隔保存快照
func (s *Snapshotter) Start(parentCtx context.Context) {
	ctx, cancel := context.WithCancel(parentCtx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Save(ctx); err != nil {
					if errors.Is(err, redis.ErrSnapshotLocked) {
						s.logger.Warn("快照被其他实例锁定，跳过本次保存")
						continue
					}
					s.logger.Error("保存检测器快照失败", zap.Error(err))
				}
			}
		}
	}()
}

// Stop 停止定时保存并写入最后一次快照
func (s *Snapshotter) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
		s.wg.Wait()
	}
	return s.Save(ctx)
}
