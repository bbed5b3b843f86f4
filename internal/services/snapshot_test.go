package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/life2you_mini/poolcore/internal/alert"
	"github.com/life2you_mini/poolcore/internal/mocks"
)

func observeTVL(t *testing.T, engine *alert.Engine, values ...int64) {
	t.Helper()
	for i, v := range values {
		_, err := engine.Observe(context.Background(), "pool-a", alert.MetricTVL, int64(100+i), decimal.NewFromInt(v))
		require.NoError(t, err)
	}
}

func TestSnapshotter_Restore(t *testing.T) {
	source := newTestEngine(t)
	observeTVL(t, source, 100, 110, 120)
	data, err := source.Snapshot()
	require.NoError(t, err)

	testCases := []struct {
		name     string
		data     []byte
		loadErr  error
		wantErr  bool
		wantKeys int
	}{
		{name: "恢复已有快照", data: data, wantKeys: 1},
		{name: "没有快照", data: nil, wantKeys: 0},
		{name: "读取失败", loadErr: errors.New("连接断开"), wantErr: true},
		{name: "快照损坏", data: []byte("{"), wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := new(mocks.MockSnapshotStore)
			store.On("LoadSnapshot", mock.Anything).Return(tc.data, tc.loadErr)

			target := newTestEngine(t)
			s := NewSnapshotter(target, store, time.Minute, zaptest.NewLogger(t))
			err := s.Restore(context.Background())
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, target.Keys(), tc.wantKeys)
			store.AssertExpectations(t)
		})
	}

	t.Run("恢复后窗口一致", func(t *testing.T) {
		store := new(mocks.MockSnapshotStore)
		store.On("LoadSnapshot", mock.Anything).Return(data, nil)

		target := newTestEngine(t)
		require.NoError(t, NewSnapshotter(target, store, time.Minute, zaptest.NewLogger(t)).Restore(context.Background()))
		want := source.WindowValues("pool-a", alert.MetricTVL)
		got := target.WindowValues("pool-a", alert.MetricTVL)
		require.Len(t, got, len(want))
		for i := range want {
			assert.True(t, want[i].Equal(got[i]), "下标 %d: %s != %s", i, want[i], got[i])
		}
	})
}

func TestSnapshotter_StartStop(t *testing.T) {
	engine := newTestEngine(t)
	observeTVL(t, engine, 100, 101)

	saved := make(chan []byte, 1)
	store := new(mocks.MockSnapshotStore)
	store.On("SaveSnapshot", mock.Anything, mock.AnythingOfType("[]uint8")).
		Run(func(args mock.Arguments) {
			select {
			case saved <- args.Get(1).([]byte):
			default:
			}
		}).
		Return(nil)

	s := NewSnapshotter(engine, store, 10*time.Millisecond, zaptest.NewLogger(t))
	s.Start(context.Background())

	select {
	case data := <-saved:
		assert.NotEmpty(t, data)
	case <-time.After(5 * time.Second):
		t.Fatal("定时快照没有触发")
	}

	require.NoError(t, s.Stop(context.Background()))
	store.AssertCalled(t, "SaveSnapshot", mock.Anything, mock.AnythingOfType("[]uint8"))
}

func TestSnapshotter_SaveError(t *testing.T) {
	store := new(mocks.MockSnapshotStore)
	store.On("SaveSnapshot", mock.Anything, mock.Anything).Return(errors.New("写入失败"))

	s := NewSnapshotter(newTestEngine(t), store, time.Minute, zaptest.NewLogger(t))
	assert.Error(t, s.Save(context.Background()))
	assert.Error(t, s.Stop(context.Background()), "未启动时停止也会写最后一次快照")
}
