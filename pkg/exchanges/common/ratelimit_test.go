package common

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiterCheck(t *testing.T) {
	l := logrus.New()
	l.SetOutput(io.Discard)
	rl := NewRateLimiter(1000, time.Minute, l)

	assert.NoError(t, rl.Check())

	rl.UpdateFromHeader("899")
	assert.NoError(t, rl.Check())

	rl.UpdateFromHeader("900")
	err := rl.Check()
	assert.ErrorIs(t, err, ErrWeightExhausted)
	assert.ErrorContains(t, err, "900/1000")

	// garbage headers leave usage untouched
	rl.UpdateFromHeader("n/a")
	used, limit, _ := rl.GetUsage()
	assert.Equal(t, 900, used)
	assert.Equal(t, 1000, limit)
}

func TestRateLimiterWindowExpires(t *testing.T) {
	l := logrus.New()
	l.SetOutput(io.Discard)
	rl := NewRateLimiter(100, 10*time.Millisecond, l)

	rl.UpdateFromHeader("100")
	assert.ErrorIs(t, rl.Check(), ErrWeightExhausted)

	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, rl.Check())
}
