package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/life2you_mini/poolcore/internal/alert"
	"github.com/life2you_mini/poolcore/internal/config"
	"github.com/life2you_mini/poolcore/internal/export"
	"github.com/life2you_mini/poolcore/internal/features"
	"github.com/life2you_mini/poolcore/internal/model"
	"github.com/life2you_mini/poolcore/internal/orchestrator"
	"github.com/life2you_mini/poolcore/internal/redis"
	"github.com/life2you_mini/poolcore/internal/telemetry"
)

// PoolcoreService 池子分析服务，组装编排器、告警引擎与外围组件
type PoolcoreService struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *config.Config
	logger *zap.Logger

	registry     *prometheus.Registry
	alerts       *alert.Engine
	orchestrator *orchestrator.Orchestrator

	storage     *redis.StorageClient
	consumer    *QueueConsumer
	snapshotter *Snapshotter
	httpServer  *HTTPServer
	exporter    *export.ParquetExporter
}

// NewPoolcoreService 创建服务；Redis 与 HTTP 按配置启用
func NewPoolcoreService(
	parentCtx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
	strategies []model.Strategy,
) (*PoolcoreService, error) {
	ctx, cancel := context.WithCancel(parentCtx)

	vocab, err := features.NewRegistry(cfg.Vocabulary(), cfg.Features.StrictVocabulary)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("初始化特征词表失败: %w", err)
	}
	builder := features.NewBuilder(vocab, cfg.FeatureOptions())

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sink := telemetry.NewPrometheus(registry)

	engine, err := alert.NewEngine(cfg.AlertConfig(), logger, sink)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("初始化告警引擎失败: %w", err)
	}
	orch := orchestrator.NewOrchestrator(cfg.OrchestratorConfig(), builder, engine, sink, logger)

	s := &PoolcoreService{
		ctx:          ctx,
		cancel:       cancel,
		cfg:          cfg,
		logger:       logger.With(zap.String("component", "poolcore_service")),
		registry:     registry,
		alerts:       engine,
		orchestrator: orch,
	}

	if cfg.Features.ExportDir != "" {
		s.exporter = export.NewParquetExporter("snappy", logger)
	}

	if cfg.Redis.Enabled {
		storage, err := redis.NewStorageClient(ctx, redis.ClientOptions{
			Host:     cfg.Redis.Host,
			Port:     strconv.Itoa(cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Redis.KeyPrefix)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("初始化Redis客户端失败: %w", err)
		}
		s.storage = storage

		queue := storage.GetQueueService()
		engine.Subscribe(func(ctx context.Context, a model.Alert) error {
			return queue.PushTask(ctx, redis.QueueAlerts, a)
		})
		s.consumer = NewQueueConsumer(ctx, logger, queue, storage, s.exporter, orch, strategies)
		s.snapshotter = NewSnapshotter(engine, storage, cfg.System.SnapshotInterval, logger)
	}

	if cfg.Server.Enabled {
		var results ResultStore
		if s.storage != nil {
			results = s.storage
		}
		s.httpServer = NewHTTPServer(cfg.Server.ListenAddr, engine, results, registry, logger)
	}

	return s, nil
}

// Orchestrator 编排器
func (s *PoolcoreService) Orchestrator() *orchestrator.Orchestrator {
	return s.orchestrator
}

// Alerts 告警引擎
func (s *PoolcoreService) Alerts() *alert.Engine {
	return s.alerts
}

// Registry 指标注册表
func (s *PoolcoreService) Registry() *prometheus.Registry {
	return s.registry
}

// Exporter 特征导出器，未配置导出目录时为 nil
func (s *PoolcoreService) Exporter() *export.ParquetExporter {
	return s.exporter
}

// Start 启动服务
func (s *PoolcoreService) Start() error {
	s.logger.Info("启动池子分析服务",
		zap.Bool("redis", s.storage != nil),
		zap.Bool("http", s.httpServer != nil))

	if s.snapshotter != nil {
		if err := s.snapshotter.Restore(s.ctx); err != nil {
			// 恢复失败时从空状态开始
			s.logger.Warn("检测器快照恢复失败", zap.Error(err))
		}
		s.snapshotter.Start(s.ctx)
	}
	if s.consumer != nil {
		if err := s.consumer.Start(); err != nil {
			return err
		}
	}
	if s.httpServer != nil {
		s.httpServer.Start()
	}
	return nil
}

// Stop 停止服务，依次停止消费、保存快照、关闭 HTTP、导出特征并关闭连接
func (s *PoolcoreService) Stop(ctx context.Context) error {
	s.logger.Info("停止池子分析服务")

	var err error
	if s.consumer != nil {
		err = multierr.Append(err, s.consumer.Stop(ctx))
	}
	if s.snapshotter != nil {
		err = multierr.Append(err, s.snapshotter.Stop(ctx))
	}
	if s.httpServer != nil {
		err = multierr.Append(err, s.httpServer.Stop(ctx))
	}
	s.cancel()

	if s.exporter != nil && s.exporter.Len() > 0 {
		path := filepath.Join(s.cfg.Features.ExportDir, fmt.Sprintf("features-%s.parquet", time.Now().UTC().Format("20060102150405")))
		err = multierr.Append(err, s.exporter.WriteFile(path))
	}
	if s.storage != nil {
		if cerr := s.storage.Close(); cerr != nil {
			s.logger.Error("关闭Redis连接失败", zap.Error(cerr))
		}
	}
	return err
}
