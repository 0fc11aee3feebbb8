package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAttemptState_Transitions(t *testing.T) {
	assert.True(t, AttemptCreated.CanTransition(AttemptSigned, false))
	assert.True(t, AttemptSigned.CanTransition(AttemptSubmitted, false))
	assert.True(t, AttemptSubmitted.CanTransition(AttemptSucceeded, false))
	assert.True(t, AttemptSubmitted.CanTransition(AttemptFailed, false))
	assert.True(t, AttemptCreated.CanTransition(AttemptFailed, false))

	assert.False(t, AttemptCreated.CanTransition(AttemptSubmitted, false))
	assert.True(t, AttemptCreated.CanTransition(AttemptSubmitted, true))
	assert.False(t, AttemptCreated.CanTransition(AttemptSucceeded, true))
	assert.False(t, AttemptSucceeded.CanTransition(AttemptFailed, false))
	assert.False(t, AttemptFailed.CanTransition(AttemptCreated, false))
}

func TestAttemptState_String(t *testing.T) {
	for s := AttemptCreated; s <= AttemptFailed; s++ {
		assert.True(t, s.IsValid())
		parsed, ok := ParseAttemptState(s.String())
		assert.True(t, ok)
		assert.Equal(t, s, parsed)
	}
	assert.Equal(t, "UNKNOWN", AttemptState(42).String())
	assert.False(t, AttemptState(42).IsValid())
	_, ok := ParseAttemptState("nope")
	assert.False(t, ok)
	assert.True(t, AttemptFailed.IsTerminal())
	assert.False(t, AttemptSubmitted.IsTerminal())
}
