package backtest

import "errors"

var (
	// ErrEmptyData 表示某个 symbol 没有任何 K 线。
	ErrEmptyData = errors.New("empty candle data")

	// ErrDiscontinuousData 表示 K 线时间戳不是等步长数列（存在缺口）。
	ErrDiscontinuousData = errors.New("discontinuous candle data")

	// ErrAlreadyRun 表示同一个引擎实例被重复 Run。
	ErrAlreadyRun = errors.New("engine already run")
)
