package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	base := time.Minute
	max := 5 * time.Minute

	assert.Equal(t, time.Minute, Backoff(base, max, 0))
	assert.Equal(t, 2*time.Minute, Backoff(base, max, 1))
	assert.Equal(t, 4*time.Minute, Backoff(base, max, 2))
	assert.Equal(t, 5*time.Minute, Backoff(base, max, 3))
	assert.Equal(t, 5*time.Minute, Backoff(base, max, 10))
}

func TestBackoffZeroBase(t *testing.T) {
	assert.Equal(t, time.Duration(0), Backoff(0, time.Minute, 4))
}

func TestBackoffBaseAboveCap(t *testing.T) {
	assert.Equal(t, time.Second, Backoff(10*time.Second, time.Second, 0))
}
