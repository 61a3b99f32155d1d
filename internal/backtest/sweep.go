package backtest

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// SweepSpec 描述参数扫描中的一次独立回放。
type SweepSpec struct {
	Name     string
	Strategy Strategy
	Options  []Option
}

// SweepResult 汇总单次回放的结果或错误。
type SweepResult struct {
	Name    string
	Summary Summary
	Err     error
}

// Sweep 并行执行多次相互独立的回放（每次回放各自持有序列与账本，
// 之间没有共享可变状态）。maxConcurrent<=0 时按 1 处理。
// ctx 取消会中止尚未开始与进行中的回放。
func Sweep(ctx context.Context, specs []SweepSpec, maxConcurrent int) []SweepResult {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	results := make([]SweepResult, len(specs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			results[i] = runOne(ctx, spec)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func runOne(ctx context.Context, spec SweepSpec) SweepResult {
	result := SweepResult{Name: spec.Name}
	engine, err := NewEngine(ctx, spec.Strategy, spec.Options...)
	if err != nil {
		result.Err = err
		return result
	}
	if err := engine.Run(ctx); err != nil {
		result.Err = err
		return result
	}
	result.Summary = engine.Summary()
	return result
}
