package job

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy 计算第 n 次失败后的重试间隔：base * 2^n，带 ±50% 抖动，不超过 max
type RetryPolicy struct {
	Base time.Duration
	Max  time.Duration
}

func NewRetryPolicy(base, max time.Duration) RetryPolicy {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return RetryPolicy{Base: base, Max: max}
}

// Delay attempt 为已经失败的次数（从 0 开始）
func (p RetryPolicy) Delay(attempt int) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.Base,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         p.Max,
	}
	b.Reset()

	var d time.Duration
	for i := 0; i <= attempt; i++ {
		d = b.NextBackOff()
		if d >= p.Max {
			break
		}
	}
	if d > p.Max {
		d = p.Max
	}
	return d
}
