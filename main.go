package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/life2you_mini/poolcore/internal/config"
	"github.com/life2you_mini/poolcore/internal/export"
	"github.com/life2you_mini/poolcore/internal/logger"
	"github.com/life2you_mini/poolcore/internal/model"
	"github.com/life2you_mini/poolcore/internal/services"
)

// 优雅关闭的等待时间
const shutdownTimeout = 10 * time.Second

var (
	configFile     = flag.String("config", "", "配置文件路径，为空时使用默认配置与环境变量")
	inputFile      = flag.String("input", "", "批量模式：观测 JSON 数组文件")
	outputFile     = flag.String("output", "", "批量模式：结果输出文件，为空时写到标准输出")
	strategiesFile = flag.String("strategies", "", "策略 JSON 数组文件")
	exportFile     = flag.String("export", "", "批量模式：特征向量 Parquet 输出文件")
	serve          = flag.Bool("serve", false, "常驻模式：消费 Redis 队列并提供 HTTP 接口")
)

func main() {
	// 解析命令行参数
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	l, err := logger.NewLogger(cfg.LogConfig())
	if err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	log := l.Logger
	defer log.Sync()
	log.Info("加载配置成功", zap.String("config_file", *configFile))

	strategies, err := readStrategies(*strategiesFile)
	if err != nil {
		log.Fatal("读取策略失败", zap.Error(err))
	}

	if *serve {
		runServe(cfg, log, strategies)
		return
	}
	if *inputFile == "" {
		log.Fatal("批量模式需要 -input 参数")
	}
	if err := runBatch(cfg, log, strategies); err != nil {
		log.Fatal("批量分析失败", zap.Error(err))
	}
}

func readStrategies(path string) ([]model.Strategy, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var strategies []model.Strategy
	if err := json.Unmarshal(data, &strategies); err != nil {
		return nil, fmt.Errorf("解析策略文件失败: %w", err)
	}
	return strategies, nil
}

func runBatch(cfg *config.Config, log *zap.Logger, strategies []model.Strategy) error {
	// 批量模式不连接 Redis，也不启动 HTTP
	cfg.Redis.Enabled = false
	cfg.Server.Enabled = false

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	service, err := services.NewPoolcoreService(ctx, cfg, log, strategies)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(*inputFile)
	if err != nil {
		return err
	}
	var observations []model.Observation
	if err := json.Unmarshal(data, &observations); err != nil {
		return fmt.Errorf("解析观测文件失败: %w", err)
	}

	results, err := service.Orchestrator().AnalyzeBatch(ctx, observations, strategies)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	if *outputFile == "" {
		fmt.Println(string(out))
	} else if err := os.WriteFile(*outputFile, out, 0644); err != nil {
		return err
	}

	if *exportFile != "" {
		exporter := export.NewParquetExporter("snappy", log)
		for _, res := range results {
			exporter.Add(res)
		}
		if err := exporter.WriteFile(*exportFile); err != nil {
			return err
		}
	}

	log.Info("批量分析完成",
		zap.Int("observations", len(observations)),
		zap.String("output", *outputFile))
	return service.Stop(ctx)
}

func runServe(cfg *config.Config, log *zap.Logger, strategies []model.Strategy) {
	// 创建上下文，用于处理信号
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 设置信号处理
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	// 创建服务
	service, err := services.NewPoolcoreService(ctx, cfg, log, strategies)
	if err != nil {
		log.Fatal("创建服务失败", zap.Error(err))
	}

	// 启动服务
	if err := service.Start(); err != nil {
		log.Fatal("启动服务失败", zap.Error(err))
	}
	log.Info("服务已启动")

	// 等待终止信号
	sig := <-signalChan
	log.Info("接收到信号，准备关闭服务", zap.String("signal", sig.String()))

	// 创建关闭超时上下文
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// 停止服务
	if err := service.Stop(shutdownCtx); err != nil {
		log.Error("服务关闭失败", zap.Error(err))
		os.Exit(1)
	}

	log.Info("服务已优雅关闭")
}
