package collabclient

import (
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"
)

// CursorInterval minimum spacing of cursor-move frames (~30Hz).
const CursorInterval = 33 * time.Millisecond

// CursorLimiter drops cursor updates that arrive too soon after the last one.
// Nothing is queued; the next allowed move carries the latest position.
type CursorLimiter struct {
	clk clock.Clock
	lim *rate.Limiter
}

// NewCursorLimiter CursorLimiter 생성
func NewCursorLimiter(clk clock.Clock, interval time.Duration) *CursorLimiter {
	return &CursorLimiter{clk: clk, lim: rate.NewLimiter(rate.Every(interval), 1)}
}

// Allow reports whether a cursor frame may be sent now.
func (c *CursorLimiter) Allow() bool {
	return c.lim.AllowN(c.clk.Now(), 1)
}
