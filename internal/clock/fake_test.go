package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

var (
	_ Clock = Real()
	_ Clock = (*FakeClock)(nil)
)

func TestFakeAfterFunc(t *testing.T) {
	c := Fake(epoch)
	var firedAt []time.Time
	c.AfterFunc(5*time.Second, func() { firedAt = append(firedAt, c.Now()) })

	c.Advance(4 * time.Second)
	assert.Empty(t, firedAt)

	c.Advance(time.Second)
	require.Len(t, firedAt, 1)
	assert.Equal(t, epoch.Add(5*time.Second), firedAt[0])
	assert.Equal(t, 0, c.Pending())
}

func TestFakeAfterFuncStop(t *testing.T) {
	c := Fake(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	c.Advance(time.Minute)
	assert.False(t, fired)
}

func TestFakeChainedTimers(t *testing.T) {
	c := Fake(epoch)
	var order []time.Duration
	c.AfterFunc(time.Second, func() {
		order = append(order, c.Now().Sub(epoch))
		c.AfterFunc(2*time.Second, func() {
			order = append(order, c.Now().Sub(epoch))
		})
	})

	c.Advance(10 * time.Second)
	assert.Equal(t, []time.Duration{time.Second, 3 * time.Second}, order)
	assert.Equal(t, epoch.Add(10*time.Second), c.Now())
}
