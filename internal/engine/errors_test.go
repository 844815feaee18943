package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandErrorHelpers(t *testing.T) {
	bad := badCommand("cue %s has no leaves", "Q1")
	assert.Equal(t, "BAD_COMMAND: cue Q1 has no leaves", bad.Error())
	assert.True(t, IsBadCommand(bad))
	assert.False(t, IsNoMemory(bad))

	wrapped := fmt.Errorf("retrieve: %w", noMemory("episode %d", 9))
	assert.True(t, IsNoMemory(wrapped), "helpers see through wrapping")
	assert.False(t, IsBadCommand(wrapped))

	assert.True(t, IsNoMatch(noMatch("nothing")))
	assert.False(t, IsNoMatch(errors.New("plain")))
	assert.False(t, IsBadCommand(nil))

	assert.Equal(t, ErrCodeNoMemory, Code(wrapped))
	assert.Equal(t, CommandErrorCode(""), Code(errors.New("plain")))
}
