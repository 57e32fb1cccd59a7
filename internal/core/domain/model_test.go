package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModelInfo(t *testing.T) {
	info := ModelInfo{Descriptor: ModelDescriptor{
		ID: "gpt-5",
		Capabilities: ModelCapabilities{
			Type:     CapabilityChat,
			Supports: ModelSupports{ToolCalls: true},
		},
	}}

	assert.Equal(t, "gpt-5", info.ID())
	assert.True(t, info.SupportsToolCalls())
}

func TestModelInfo_NoToolCallSupport(t *testing.T) {
	info := ModelInfo{Descriptor: ModelDescriptor{ID: "gpt-3"}}
	assert.False(t, info.SupportsToolCalls())
}
