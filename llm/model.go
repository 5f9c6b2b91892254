// Package llm defines the provider-agnostic LLM Executor contract: the
// capability-tagged LLModel, the Executor interface (single-response,
// streaming, multiple-choice, moderation, embedding), and the retry policy
// applied at the LLM boundary.
package llm

// Capability names an optional feature a target model may or may not
// support. The executor enforces these before issuing any network I/O.
type Capability string

const (
	CapCompletion         Capability = "completion"
	CapTools              Capability = "tools"
	CapToolChoice         Capability = "tool_choice"
	CapMultipleChoices    Capability = "multiple_choices"
	CapVisionImage        Capability = "vision.image"
	CapVisionVideo        Capability = "vision.video"
	CapAudio              Capability = "audio"
	CapDocument           Capability = "document"
	CapEmbed              Capability = "embed"
	CapPromptCaching      Capability = "prompt_caching"
	CapModeration         Capability = "moderation"
	CapSchemaJSONBasic    Capability = "schema.json.basic"
	CapSchemaJSONStandard Capability = "schema.json.standard"
	CapSpeculation        Capability = "speculation"
	CapTemperature        Capability = "temperature"
)

// LLModel identifies a target model and the capabilities it supports.
// Capabilities are advisory to the runtime but enforced by the executor
// before an incompatible call is issued.
type LLModel struct {
	ProviderID   string
	ModelID      string
	Capabilities map[Capability]struct{}
}

// NewLLModel constructs an LLModel with the given capability set.
func NewLLModel(providerID, modelID string, capabilities ...Capability) LLModel {
	caps := make(map[Capability]struct{}, len(capabilities))
	for _, c := range capabilities {
		caps[c] = struct{}{}
	}
	return LLModel{ProviderID: providerID, ModelID: modelID, Capabilities: caps}
}

// HasCapability reports whether the model supports cap.
func (m LLModel) HasCapability(cap Capability) bool {
	_, ok := m.Capabilities[cap]
	return ok
}

// ModerationCategory names a moderation classification bucket.
type ModerationCategory string

// ModerationResult is the result of a moderate() call.
type ModerationResult struct {
	IsHarmful  bool
	Categories map[ModerationCategory]struct{}
}
