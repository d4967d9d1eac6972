package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextLifecycle(t *testing.T) {
	c := NewContext()
	assert.Equal(t, "", c.ID())
	assert.Equal(t, StatusNone, c.Status())
	assert.True(t, c.IsIdle())

	c.MarkReady()
	assert.Equal(t, StatusNone, c.Status(), "no session to mark ready")

	c.Begin("s1")
	assert.Equal(t, "s1", c.ID())
	assert.True(t, c.IsInitializing())

	c.MarkReady()
	assert.False(t, c.IsInitializing())
	assert.Equal(t, StatusReady, c.Status())

	c.SetIdle(false)
	assert.False(t, c.IsIdle())

	c.Activate("s2")
	assert.Equal(t, "s2", c.ID())
	assert.True(t, c.IsIdle())

	c.Clear()
	assert.Equal(t, "", c.ID())
	assert.Equal(t, StatusNone, c.Status())
}

func TestModels(t *testing.T) {
	m := NewModels("claude-sonnet", "anthropic", map[string]string{"gpt-4o": "openai"})
	assert.Equal(t, "claude-sonnet", m.Selected())
	assert.Equal(t, "anthropic", m.ProviderFor("claude-sonnet"))
	assert.Equal(t, "openai", m.ProviderFor("gpt-4o"))

	m.Select("gpt-4o")
	assert.Equal(t, "gpt-4o", m.Selected())
	assert.Equal(t, "openai", m.ProviderFor(m.Selected()))
}
