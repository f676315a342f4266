package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyDelay_GrowsAndCaps(t *testing.T) {
	p := Policy{MaxAttempts: 10, BackoffBase: 1 * time.Second, BackoffCap: 10 * time.Second}

	assert.Equal(t, 1*time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 8*time.Second, p.Delay(3))
	assert.Equal(t, 10*time.Second, p.Delay(4))
	assert.Equal(t, 10*time.Second, p.Delay(20))

	// Delays never shrink between consecutive attempts.
	prev := time.Duration(0)
	for i := 0; i < 8; i++ {
		d := p.Delay(i)
		assert.GreaterOrEqual(t, d, prev, "delay for attempt %d", i)
		prev = d
	}
}

func TestJobConstructors(t *testing.T) {
	p := Policy{MaxAttempts: 3, BackoffBase: time.Second, BackoffCap: time.Minute}

	pin := NewPinJob("obj-1", "/tmp/f", p)
	require.Equal(t, KindPin, pin.Kind)
	assert.Equal(t, "obj-1", pin.ObjectID)
	assert.Equal(t, "/tmp/f", pin.LocalPath)
	assert.NotEmpty(t, pin.ID)
	assert.Zero(t, pin.Attempt)

	unpin := NewUnpinJob("obj-2", "bafy123", p)
	require.Equal(t, KindUnpin, unpin.Kind)
	assert.Equal(t, "bafy123", unpin.CID)

	verify := NewVerifyJob("obj-3", p)
	require.Equal(t, KindVerify, verify.Kind)
	assert.Equal(t, "obj-3", verify.ObjectID)

	thumb := NewThumbnailJob("obj-4", "bafy456", "owner-1", p)
	require.Equal(t, KindThumbnail, thumb.Kind)
	assert.Equal(t, "owner-1", thumb.OwnerID)
	assert.Equal(t, "bafy456", thumb.CID)
}
