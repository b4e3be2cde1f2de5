package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_DelayGrowsAndIsCapped(t *testing.T) {
	p := NewRetryPolicy(time.Second, 30*time.Second)

	for attempt := 0; attempt < 10; attempt++ {
		d := p.Delay(attempt)
		assert.Greater(t, d, time.Duration(0), "attempt %d", attempt)
		assert.LessOrEqual(t, d, 30*time.Second, "attempt %d", attempt)
	}

	// 第一次重试落在 base 的 ±50% 内
	first := p.Delay(0)
	assert.GreaterOrEqual(t, first, 500*time.Millisecond)
	assert.LessOrEqual(t, first, 1500*time.Millisecond)

	// 足够多次之后一定被截断到 max
	assert.Equal(t, 30*time.Second, p.Delay(50))
}

func TestNewRetryPolicy_Defaults(t *testing.T) {
	p := NewRetryPolicy(0, 0)
	assert.Equal(t, time.Second, p.Base)
	assert.Equal(t, time.Second, p.Max)
	assert.LessOrEqual(t, p.Delay(3), time.Second)
}
