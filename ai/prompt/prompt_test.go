package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatFillsSlots(t *testing.T) {
	rendered, err := Format(TemplateKnowledge, map[string]string{
		"context":  "Orientation happens on day one.\n[1] Document handbook, Chunk 2",
		"history":  "User: hello",
		"question": "What is the onboarding process?",
	})
	require.NoError(t, err)
	assert.Contains(t, rendered.System, "Cite your sources")
	assert.Contains(t, rendered.User, "Orientation happens on day one.")
	assert.Contains(t, rendered.User, "What is the onboarding process?")
	assert.NotContains(t, rendered.User, "{context}")
}

func TestFormatMissingSlot(t *testing.T) {
	_, err := Format(TemplateKnowledge, map[string]string{
		"history":  "",
		"question": "q",
	})
	require.ErrorIs(t, err, ErrTemplateSlotMissing)
	assert.Contains(t, err.Error(), "context")
}

func TestFormatEmptySlotValueIsFine(t *testing.T) {
	rendered, err := Format(TemplateChat, map[string]string{
		"history":  "",
		"question": "hello",
	})
	require.NoError(t, err)
	assert.Contains(t, rendered.User, "hello")
}

func TestFormatExtraSlotsIgnored(t *testing.T) {
	_, err := Format(TemplateChat, map[string]string{
		"history":  "h",
		"question": "q",
		"unused":   "x",
	})
	require.NoError(t, err)
}

func TestFormatUnknownTemplate(t *testing.T) {
	_, err := Format("nope", nil)
	require.ErrorIs(t, err, ErrTemplateNotFound)
}
