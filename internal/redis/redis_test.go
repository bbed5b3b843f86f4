package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/life2you_mini/poolcore/internal/model"
)

func newTestStorage(t *testing.T) (*StorageClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewStorageClient(context.Background(), ClientOptions{Host: mr.Host(), Port: mr.Port()}, "poolcore:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestClientOptions_Addr(t *testing.T) {
	tests := []struct {
		name string
		opts ClientOptions
		want string
	}{
		{name: "默认", opts: ClientOptions{}, want: "localhost:6379"},
		{name: "自定义", opts: ClientOptions{Host: "10.0.0.1", Port: "6380"}, want: "10.0.0.1:6380"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.opts.Addr())
		})
	}
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port := mr.Host(), mr.Port()
	mr.Close()

	_, err := NewRedisClient(context.Background(), ClientOptions{Host: host, Port: port})
	assert.Error(t, err)
}

func TestQueueService_PushPop(t *testing.T) {
	s, mr := newTestStorage(t)
	ctx := context.Background()
	q := s.GetQueueService()

	require.NoError(t, q.PushTask(ctx, QueueObservations, map[string]string{"pool_id": "a"}))
	require.NoError(t, q.PushTask(ctx, QueueObservations, map[string]string{"pool_id": "b"}))
	assert.True(t, mr.Exists("poolcore:observations"))

	n, err := q.GetQueueLength(ctx, QueueObservations)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// 先进先出
	data, err := q.PopTask(ctx, QueueObservations, time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"pool_id":"a"}`, string(data))

	require.NoError(t, q.ClearQueue(ctx, QueueObservations))
	n, err = q.GetQueueLength(ctx, QueueObservations)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueueService_Requeue(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()
	q := s.GetQueueService()

	require.NoError(t, q.PushTask(ctx, QueueObservations, map[string]string{"pool_id": "a"}))
	require.NoError(t, q.PushTask(ctx, QueueObservations, map[string]string{"pool_id": "b"}))

	data, err := q.PopTask(ctx, QueueObservations, time.Second)
	require.NoError(t, err)
	require.NoError(t, q.RequeueTask(ctx, QueueObservations, data))

	// 放回的任务排在队首
	data, err = q.PopTask(ctx, QueueObservations, time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"pool_id":"a"}`, string(data))
}

func TestQueueService_PopTimeout(t *testing.T) {
	s, _ := newTestStorage(t)
	data, err := s.GetQueueService().PopTask(context.Background(), QueueResults, 50*time.Millisecond)
	assert.NoError(t, err)
	assert.Nil(t, data)
}

func TestStorageClient_Snapshot(t *testing.T) {
	s, mr := newTestStorage(t)
	ctx := context.Background()

	data, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, data, "没有快照")

	require.NoError(t, s.SaveSnapshot(ctx, []byte(`{"version":1,"detectors":[]}`)))
	data, err = s.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1,"detectors":[]}`, string(data))
	assert.False(t, mr.Exists("poolcore:detectors:snapshot:lock"), "写入后释放锁")
}

func TestStorageClient_SnapshotLocked(t *testing.T) {
	s, mr := newTestStorage(t)
	require.NoError(t, mr.Set("poolcore:detectors:snapshot:lock", "other"))

	err := s.SaveSnapshot(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrSnapshotLocked)
	v, _ := mr.Get("poolcore:detectors:snapshot:lock")
	assert.Equal(t, "other", v, "不能释放别人的锁")
}

func TestLock(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()
	client := s.GetClient()

	ok, err := CreateLock(ctx, client, "k", "v1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CreateLock(ctx, client, "k", "v2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	released, err := ReleaseLock(ctx, client, "k", "v2")
	require.NoError(t, err)
	assert.False(t, released)

	released, err = ReleaseLock(ctx, client, "k", "v1")
	require.NoError(t, err)
	assert.True(t, released)
}

func TestStorageClient_LatestResult(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	res, err := s.GetLatestResult(ctx, "pool-a")
	require.NoError(t, err)
	assert.Nil(t, res)

	require.NoError(t, s.SaveLatestResult(ctx, &model.Result{
		ObservationID: "obs-1",
		PoolID:        "pool-a",
		Timestamp:     100,
		PositionSize:  decimal.NewFromInt(990000),
		Flags:         []model.Flag{model.FlagInsufficientHistory},
	}))

	res, err = s.GetLatestResult(ctx, "pool-a")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "obs-1", res.ObservationID)
	assert.True(t, res.PositionSize.Equal(decimal.NewFromInt(990000)))
	assert.True(t, res.HasFlag(model.FlagInsufficientHistory))
}
