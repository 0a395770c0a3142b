package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextDelayDoublesUpToMax(t *testing.T) {
	assert.Equal(t, time.Second, nextDelay(500*time.Millisecond, 15*time.Second))
	assert.Equal(t, 15*time.Second, nextDelay(8*time.Second, 15*time.Second))
	assert.Equal(t, 15*time.Second, nextDelay(15*time.Second, 15*time.Second))
	assert.Equal(t, 15*time.Second, nextDelay(0, 15*time.Second))
}

func TestRecentTaskMsRoundTrip(t *testing.T) {
	w := &workerNode{}
	assert.Zero(t, w.recentTaskMs())
	w.setLastTaskMs(12.5)
	assert.InDelta(t, 12.5, w.recentTaskMs(), 0.0001)
}

func TestPendingTracksBusyFlag(t *testing.T) {
	w := &workerNode{}
	assert.Zero(t, w.Pending())
	w.busy.Store(true)
	assert.Equal(t, 1, w.Pending())
	w.busy.Store(false)
	assert.Zero(t, w.Pending())
}

func TestSlowdownOnlyAppliesToNodeD(t *testing.T) {
	t.Setenv(SlowdownEnv, "250")
	assert.Equal(t, 250*time.Millisecond, slowdownFor("D"))
	assert.Zero(t, slowdownFor("C"))
	assert.Zero(t, slowdownFor("F"))

	t.Setenv(SlowdownEnv, "not-a-number")
	assert.Zero(t, slowdownFor("D"))

	t.Setenv(SlowdownEnv, "-5")
	assert.Zero(t, slowdownFor("D"))
}
