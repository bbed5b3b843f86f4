package services

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/life2you_mini/poolcore/internal/config"
	"github.com/life2you_mini/poolcore/internal/redis"
)

func TestPoolcoreService_BatchOnly(t *testing.T) {
	cfg := config.GetDefaultConfig()

	s, err := NewPoolcoreService(context.Background(), cfg, zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	assert.NotNil(t, s.Orchestrator())
	assert.NotNil(t, s.Alerts())
	assert.Nil(t, s.Exporter())

	require.NoError(t, s.Start())
	require.NoError(t, s.Stop(context.Background()))
}

func TestPoolcoreService_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	host := mr.Host()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	mr.Close()

	cfg := config.GetDefaultConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Host = host
	cfg.Redis.Port = port

	_, err = NewPoolcoreService(context.Background(), cfg, zaptest.NewLogger(t), nil)
	assert.Error(t, err)
}

func TestPoolcoreService_QueueRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	exportDir := t.TempDir()
	cfg := config.GetDefaultConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Host = mr.Host()
	cfg.Redis.Port = port
	cfg.Features.ExportDir = exportDir

	s, err := NewPoolcoreService(ctx, cfg, zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	s.consumer.popTimeout = time.Second
	require.NoError(t, s.Start())

	queue := s.storage.GetQueueService()
	require.NoError(t, queue.PushTask(ctx, redis.QueueObservations, testObservation("obs-1", 1_700_000_000)))

	assert.Eventually(t, func() bool {
		res, err := s.storage.GetLatestResult(ctx, "ref-usdc-usdt")
		return err == nil && res != nil
	}, 5*time.Second, 20*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))

	// 停止时写入最后一次快照
	assert.True(t, mr.Exists(cfg.Redis.KeyPrefix+redis.SnapshotKey))

	files, err := filepath.Glob(filepath.Join(exportDir, "features-*.parquet"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	info, err := os.Stat(files[0])
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
