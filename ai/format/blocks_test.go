package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTextPassesThrough(t *testing.T) {
	source := "# Title\nSome *emphasis* here"
	resp := Format(source, false)
	assert.Equal(t, source, resp.Text)
	assert.Nil(t, resp.Blocks)
}

func TestFormatHeaderOnly(t *testing.T) {
	resp := Format("# H", true)
	require.Len(t, resp.Blocks, 1)
	assert.Equal(t, BlockHeader, resp.Blocks[0].Type)
	assert.Equal(t, "H", resp.Blocks[0].Text.Text)
}

func TestFormatNoTrailingDivider(t *testing.T) {
	source := "# First\nbody one\n\n## Second\nbody two"
	resp := Format(source, true)
	require.NotEmpty(t, resp.Blocks)
	assert.NotEqual(t, BlockDivider, resp.Blocks[len(resp.Blocks)-1].Type)

	// header, section, divider, header, section
	types := make([]string, 0, len(resp.Blocks))
	for _, b := range resp.Blocks {
		types = append(types, b.Type)
	}
	assert.Equal(t, []string{BlockHeader, BlockSection, BlockDivider, BlockHeader, BlockSection}, types)
	assert.Equal(t, "body one", resp.Blocks[1].Text.Text)
	assert.Equal(t, "Second", resp.Blocks[3].Text.Text)
}

func TestFormatPreambleBeforeFirstHeader(t *testing.T) {
	resp := Format("intro text\n\n# Details\nthe details", true)
	require.GreaterOrEqual(t, len(resp.Blocks), 3)
	assert.Equal(t, BlockSection, resp.Blocks[0].Type)
	assert.Equal(t, "intro text", resp.Blocks[0].Text.Text)
	assert.Equal(t, BlockDivider, resp.Blocks[1].Type)
	assert.Equal(t, BlockHeader, resp.Blocks[2].Type)
}

func TestFormatPlainTextSingleSection(t *testing.T) {
	resp := Format("just a sentence", true)
	require.Len(t, resp.Blocks, 1)
	assert.Equal(t, BlockSection, resp.Blocks[0].Type)
	assert.Equal(t, TextMarkdown, resp.Blocks[0].Text.Type)
}

func TestFormatKeepsListMarkers(t *testing.T) {
	resp := Format("# Steps\n- first\n- second", true)
	require.Len(t, resp.Blocks, 2)
	assert.Equal(t, "- first\n- second", resp.Blocks[1].Text.Text)
}

func TestFormatIgnoresHashInsideCodeFence(t *testing.T) {
	source := "# Real\n```\n# not a header\n```"
	resp := Format(source, true)
	headers := 0
	for _, b := range resp.Blocks {
		if b.Type == BlockHeader {
			headers++
		}
	}
	assert.Equal(t, 1, headers)
}

func TestFormatError(t *testing.T) {
	resp := FormatError("something broke")
	assert.Equal(t, "something broke", resp.Text)
	require.Len(t, resp.Blocks, 2)
	assert.Equal(t, BlockHeader, resp.Blocks[0].Type)
	assert.Equal(t, "Error", resp.Blocks[0].Text.Text)
	assert.Equal(t, BlockSection, resp.Blocks[1].Type)
	assert.Equal(t, "something broke", resp.Blocks[1].Text.Text)
}

func TestFormatEmptyInput(t *testing.T) {
	resp := Format("", true)
	assert.Empty(t, resp.Blocks)
}
