package rand

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFloat64Range(t *testing.T) {
	for range 1000 {
		f := Float64()
		assert.GreaterOrEqual(t, f, 0.0)
		assert.Less(t, f, 1.0)
	}
}

func TestJitter(t *testing.T) {
	assert.Equal(t, 5*time.Second, Jitter(5*time.Second, 0))
	assert.Equal(t, time.Duration(0), Jitter(0, 0.5))

	for range 1000 {
		d := Jitter(10*time.Second, 0.2)
		assert.GreaterOrEqual(t, d, 8*time.Second)
		assert.LessOrEqual(t, d, 12*time.Second)
	}
	assert.GreaterOrEqual(t, Jitter(time.Second, 3), time.Duration(0))
}
