package ingress

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSenderRateLimiterAllowsBurstThenBlocks(t *testing.T) {
	rl := newSenderRateLimiter(1, 2)

	require.True(t, rl.allow("alice"))
	require.True(t, rl.allow("alice"))
	require.False(t, rl.allow("alice"), "burst of 2 exhausted on the third immediate call")
}

func TestSenderRateLimiterTracksSendersIndependently(t *testing.T) {
	rl := newSenderRateLimiter(1, 1)

	require.True(t, rl.allow("alice"))
	require.False(t, rl.allow("alice"))
	require.True(t, rl.allow("bob"), "a distinct sender gets its own bucket")
}
