package ingest

import (
	"fmt"

	"github.com/life2you_mini/poolcore/internal/errs"
	"github.com/life2you_mini/poolcore/internal/model"
)

// Ingest 校验并规整单个观测
func Ingest(obs model.Observation, opts Options) (*model.NormalizedPool, error) {
	if err := Validate(&obs, opts); err != nil {
		return nil, err
	}
	return Normalize(obs, opts), nil
}

// TickKey 同一池子同一时刻的唯一键
type TickKey struct {
	PoolID    string
	Timestamp int64
}

// DuplicateTicks 返回批次中重复出现的 (pool, timestamp) 下标，第一次出现的不计入
func DuplicateTicks(batch []model.Observation) map[int]error {
	seen := make(map[TickKey]int, len(batch))
	dups := make(map[int]error)
	for i, obs := range batch {
		key := TickKey{PoolID: obs.PoolID, Timestamp: obs.Timestamp}
		if first, ok := seen[key]; ok {
			dups[i] = errs.Wrap(errs.InvalidObservation, "ingest.unique",
				fmt.Errorf("池子 %s 在时间 %d 已有观测 (下标 %d)", obs.PoolID, obs.Timestamp, first))
			continue
		}
		seen[key] = i
	}
	return dups
}
