package main

import (
	"testing"

	"github.com/gookit/color"
	"github.com/stretchr/testify/assert"
)

func TestIsExit(t *testing.T) {
	assert.True(t, isExit("/quit"))
	assert.True(t, isExit("  /EXIT "))
	assert.False(t, isExit("/quit now"))
	assert.False(t, isExit("hello"))
}

func TestRender(t *testing.T) {
	color.Disable()

	for _, line := range []string{
		"ERROR Username already taken. Connection closing.",
		"WELCOME alice",
		"SERVER: bob has joined the chat.",
		"alice (private): hi",
		"alice: hi",
	} {
		assert.Equal(t, line, render(line))
	}
}
