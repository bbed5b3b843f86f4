package alert

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/life2you_mini/poolcore/internal/model"
	"github.com/life2you_mini/poolcore/internal/series"
)

// SnapshotVersion 快照格式版本；新版本只增加字段，旧字段语义不变
const SnapshotVersion = 1

type snapshot struct {
	Version   int              `json:"version"`
	Detectors []detectorRecord `json:"detectors"`
}

type detectorRecord struct {
	PoolID   string            `json:"pool_id"`
	Metric   string            `json:"metric"`
	Window   []decimal.Decimal `json:"window"`
	History  []model.Alert     `json:"history"`
	Poisoned bool              `json:"poisoned,omitempty"`
}

// Snapshot 把全部检测器状态序列化为字节，按键排序保证输出稳定
func (e *Engine) Snapshot() ([]byte, error) {
	snap := snapshot{Version: SnapshotVersion, Detectors: []detectorRecord{}}
	for _, key := range e.Keys() {
		d, ok := e.lookup(key)
		if !ok {
			continue
		}
		d.mu.Lock()
		snap.Detectors = append(snap.Detectors, detectorRecord{
			PoolID:   key.PoolID,
			Metric:   key.Metric,
			Window:   d.window.Values(),
			History:  append([]model.Alert{}, d.history...),
			Poisoned: d.poisoned,
		})
		d.mu.Unlock()
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("序列化检测器快照失败: %w", err)
	}
	return data, nil
}

// Restore 用快照替换全部检测器状态
// 未注册的指标被跳过，窗口与历史按当前配置截断
func (e *Engine) Restore(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("解析检测器快照失败: %w", err)
	}
	if snap.Version < 1 {
		return fmt.Errorf("无效的快照版本: %d", snap.Version)
	}
	if snap.Version > SnapshotVersion {
		e.logger.Warn("快照版本高于当前实现，忽略未知字段",
			zap.Int("snapshot_version", snap.Version),
			zap.Int("supported_version", SnapshotVersion))
	}

	restored := make(map[Key]*detector, len(snap.Detectors))
	for _, rec := range snap.Detectors {
		mc, ok := e.cfg.Metrics[rec.Metric]
		if !ok {
			e.logger.Warn("快照中包含未注册的指标，已跳过",
				zap.String("pool_id", rec.PoolID),
				zap.String("metric", rec.Metric))
			continue
		}
		w := series.NewWindow(mc.Window)
		w.Reset(rec.Window)

		history := rec.History
		if len(history) > e.cfg.HistorySize {
			history = history[len(history)-e.cfg.HistorySize:]
		}
		restored[Key{PoolID: rec.PoolID, Metric: rec.Metric}] = &detector{
			window:   w,
			history:  append([]model.Alert(nil), history...),
			poisoned: rec.Poisoned,
		}
	}

	e.mu.Lock()
	e.detectors = restored
	e.mu.Unlock()

	e.logger.Info("检测器快照已恢复", zap.Int("detectors", len(restored)))
	return nil
}
