package domain

// ModelCapabilityType is the kind of inference a model performs.
type ModelCapabilityType string

const (
	CapabilityChat        ModelCapabilityType = "chat"
	CapabilityCompletion  ModelCapabilityType = "completion"
	CapabilityEmbeddings  ModelCapabilityType = "embeddings"
)

// ModelLimits bounds how much a model will accept and return.
type ModelLimits struct {
	MaxPromptTokens int `json:"max_prompt_tokens"`
	MaxOutputTokens int `json:"max_output_tokens"`
}

// ModelSupports flags optional model features.
type ModelSupports struct {
	Streaming          bool `json:"streaming"`
	ToolCalls          bool `json:"tool_calls,omitempty"`
	Vision             bool `json:"vision,omitempty"`
	ParallelToolCalls  bool `json:"parallel_tool_calls,omitempty"`
}

// ModelCapabilities describes what a model can do.
type ModelCapabilities struct {
	Type     ModelCapabilityType `json:"type"`
	Family   string              `json:"family"`
	Limits   ModelLimits         `json:"limits"`
	Supports ModelSupports       `json:"supports"`
}

// ModelPolicy carries provider-imposed usage terms.
type ModelPolicy struct {
	Terms string `json:"terms,omitempty"`
}

// ModelBilling carries the pricing multiplier shown to users.
type ModelBilling struct {
	Multiplier float64 `json:"multiplier,omitempty"`
}

// ModelDescriptor is the wire shape returned by the gateway's model catalog.
type ModelDescriptor struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Version            string            `json:"version"`
	Capabilities       ModelCapabilities `json:"capabilities"`
	ModelPickerEnabled bool              `json:"model_picker_enabled,omitempty"`
	Policy             ModelPolicy       `json:"policy,omitempty"`
	Billing            ModelBilling      `json:"billing,omitempty"`
	Vendor             string            `json:"vendor,omitempty"`
}

// ModelInfo is the internal, derived view of a ModelDescriptor used once it
// has been categorized into one of the three catalog lists.
type ModelInfo struct {
	Descriptor ModelDescriptor
}

// ID returns the model's catalog identifier.
func (m ModelInfo) ID() string { return m.Descriptor.ID }

// SupportsToolCalls reports whether the model accepts a tools block.
func (m ModelInfo) SupportsToolCalls() bool {
	return m.Descriptor.Capabilities.Supports.ToolCalls
}
