package orchestrator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	initial, maxDelay := time.Second, 30*time.Second

	assert.Equal(t, time.Second, Backoff(0, initial, maxDelay))
	assert.Equal(t, time.Second, Backoff(1, initial, maxDelay))
	assert.Equal(t, 2*time.Second, Backoff(2, initial, maxDelay))
	assert.Equal(t, 16*time.Second, Backoff(5, initial, maxDelay))
	assert.Equal(t, 30*time.Second, Backoff(6, initial, maxDelay))
	assert.Equal(t, 30*time.Second, Backoff(100, initial, maxDelay))
}

func TestStatusMessage(t *testing.T) {
	cases := map[Status]string{
		{State: StateDisconnected}:                        "Disconnected",
		{State: StateConnecting}:                          "Connecting...",
		{State: StateJoined}:                              "Waiting for stream",
		{State: StateStreamConnected}:                     "Live",
		{State: StateError}:                               "Connection error, retrying",
		{State: StateError, Reason: ReasonConnectTimeout}: "Connection error: connect timeout",
		{State: StateError, Reason: ReasonGaveUp}:         "Could not reach the live room. Reconnect to try again",
		{State: StateError, Reason: ReasonReplaced}:       "Another broadcaster took over this room",
	}
	for status, want := range cases {
		assert.Equal(t, want, status.Message(), status.State.String())
	}

	assert.True(t, Status{State: StateError}.CanReconnect())
	assert.False(t, Status{State: StateJoined}.CanReconnect())
}

func TestOpError(t *testing.T) {
	err := newOpError("connect", ErrConnectTimeout)
	assert.EqualError(t, err, "connect: connect timed out")
	assert.True(t, errors.Is(err, ErrConnectTimeout))
}
