package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusIdle, StatusApproving, true},
		{StatusApproving, StatusStarting, true},
		{StatusStarting, StatusActive, true},
		{StatusActive, StatusEnding, true},
		{StatusEnding, StatusIdle, true},

		// Error exits back to idle.
		{StatusApproving, StatusIdle, true},
		{StatusStarting, StatusIdle, true},
		{StatusActive, StatusIdle, true},

		// Skips and reversals.
		{StatusIdle, StatusActive, false},
		{StatusIdle, StatusStarting, false},
		{StatusIdle, StatusEnding, false},
		{StatusApproving, StatusActive, false},
		{StatusStarting, StatusEnding, false},
		{StatusActive, StatusApproving, false},
		{StatusEnding, StatusActive, false},
		{StatusEnding, StatusApproving, false},
		{StatusIdle, StatusIdle, false},
		{StatusActive, StatusActive, false},
	}

	for _, c := range cases {
		sess := &Session{Status: c.from}
		err := sess.transition(c.to)
		if c.allowed {
			assert.NoError(t, err, "%s -> %s", c.from, c.to)
			assert.Equal(t, c.to, sess.Status)
		} else {
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", c.from, c.to)
			assert.Equal(t, c.from, sess.Status, "failed transition must not move state")
		}
	}
}

func TestEstimateTokensRoundsUp(t *testing.T) {
	cases := []struct {
		promptLen int
		replyLen  int
		want      int64
	}{
		{0, 0, 0},
		{1, 0, 1},
		{2, 2, 1},
		{3, 2, 2},
		{150, 250, 100},
		{0, 399, 100},
		{0, 401, 101},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, estimateTokens(c.promptLen, c.replyLen), "prompt %d reply %d", c.promptLen, c.replyLen)
	}
}
