package httpapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUserLimiter_PerKeyBuckets(t *testing.T) {
	l := newUserLimiter(1, 1)
	now := time.Now()
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("user:1"))
	assert.False(t, l.allow("user:1"))
	assert.True(t, l.allow("user:2"), "other users have their own bucket")
}

func TestUserLimiter_DropsIdleBuckets(t *testing.T) {
	l := newUserLimiter(1, 1)
	now := time.Now()
	l.now = func() time.Time { return now }

	for _, key := range []string{"user:1", "user:2", "user:3"} {
		l.allow(key)
	}
	assert.Len(t, l.buckets, 3)

	now = now.Add(l.idle / 2)
	l.allow("user:1")
	assert.Len(t, l.buckets, 3, "nothing is idle yet")

	now = now.Add(l.idle)
	assert.True(t, l.allow("user:4"))
	assert.Len(t, l.buckets, 1)
	assert.Contains(t, l.buckets, "user:4")
}

func TestNewUserLimiter_IdleCoversRefill(t *testing.T) {
	assert.Equal(t, minLimiterIdle, newUserLimiter(10, 20).idle)
	assert.Equal(t, 200*time.Second, newUserLimiter(0.5, 100).idle)
}
