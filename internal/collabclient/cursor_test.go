package collabclient

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestCursorLimiterDropsBurst(t *testing.T) {
	clk := clock.NewMock()
	lim := NewCursorLimiter(clk, CursorInterval)

	sent := 0
	// 100 pointer moves within 50ms
	for i := 0; i < 100; i++ {
		if lim.Allow() {
			sent++
		}
		clk.Add(500 * time.Microsecond)
	}
	assert.LessOrEqual(t, sent, 2)
	assert.GreaterOrEqual(t, sent, 1)
}

func TestCursorLimiterAllowsAfterInterval(t *testing.T) {
	clk := clock.NewMock()
	lim := NewCursorLimiter(clk, CursorInterval)

	assert.True(t, lim.Allow())
	assert.False(t, lim.Allow())
	clk.Add(CursorInterval + time.Millisecond)
	assert.True(t, lim.Allow())
}
