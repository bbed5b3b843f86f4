package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/life2you_mini/poolcore/internal/errs"
	"github.com/life2you_mini/poolcore/internal/model"
)

type outcome[T any] struct {
	val T
	err error
}

// runPhase 在独立 goroutine 中执行阶段函数，超时返回 PhaseTimeout，上下文取消返回 ctx.Err()
// 阶段函数只能通过返回值输出结果，超时后其结果被丢弃
func runPhase[T any](ctx context.Context, phase model.Phase, timeout time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	ch := make(chan outcome[T], 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome[T]{err: fmt.Errorf("阶段 %s panic: %v", phase, r)}
			}
		}()
		v, err := fn()
		ch <- outcome[T]{val: v, err: err}
	}()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case out := <-ch:
		return out.val, out.err
	case <-deadline:
		return zero, errs.New(errs.PhaseTimeout, "orchestrator."+string(phase), "阶段 %s 超过时限 %s", phase, timeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
