package agent

// ToolChoiceMode controls how the executor should use tools for a request.
type ToolChoiceMode string

const (
	// ToolChoiceAuto lets the model decide whether to call tools.
	ToolChoiceAuto ToolChoiceMode = "auto"
	// ToolChoiceRequired forces the model to emit at least one ToolCall.
	ToolChoiceRequired ToolChoiceMode = "required"
	// ToolChoiceNone forbids the model from emitting any ToolCall.
	ToolChoiceNone ToolChoiceMode = "none"
	// ToolChoiceNamed forces the model to call a specific named tool.
	ToolChoiceNamed ToolChoiceMode = "named"
)

// ToolChoice selects how the executor constrains tool use for a request.
// When Mode is ToolChoiceNamed, Name identifies the tool that must be
// called.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string
}

// Params bundles the request-shaping parameters attached to a Prompt.
type Params struct {
	Temperature     float64
	NumberOfChoices int
	ToolChoice      ToolChoice
	ReasoningEffort string
	StopSequences   []string
}

// DefaultParams returns the Params a freshly constructed Prompt carries:
// auto tool choice and a single choice.
func DefaultParams() Params {
	return Params{
		NumberOfChoices: 1,
		ToolChoice:      ToolChoice{Mode: ToolChoiceAuto},
	}
}

// Prompt is an ordered, immutable sequence of messages plus the parameters
// that shape the next LLM call. Prompts are rebuilt by appending; there is
// no in-place mutation.
type Prompt struct {
	Messages []Message
	Params   Params
}

// NewPrompt constructs an empty prompt with default params.
func NewPrompt() Prompt {
	return Prompt{Params: DefaultParams()}
}

// Append returns a new Prompt with m appended, stamped with the next
// monotonic index (previous max + 1, or 0 for the first message) and the
// current timestamp. The receiver is left unmodified.
func (p Prompt) Append(m Message) Prompt {
	nextIndex := 0
	if n := len(p.Messages); n > 0 {
		nextIndex = p.Messages[n-1].Index + 1
	}
	out := make([]Message, len(p.Messages), len(p.Messages)+1)
	copy(out, p.Messages)
	out = append(out, m.withIndex(nextIndex))
	return Prompt{Messages: out, Params: p.Params}
}

// AppendAll appends each message in order, returning the resulting Prompt.
func (p Prompt) AppendAll(msgs ...Message) Prompt {
	for _, m := range msgs {
		p = p.Append(m)
	}
	return p
}

// WithParams returns a new Prompt with Params replaced; it never mutates
// the receiver.
func (p Prompt) WithParams(params Params) Prompt {
	return Prompt{Messages: p.Messages, Params: params}
}

// History returns a read-only copy of the prompt's messages, matching the
// Agent Environment's history() contract.
func (p Prompt) History() []Message {
	out := make([]Message, len(p.Messages))
	copy(out, p.Messages)
	return out
}

// LastIndex returns the index of the last message in the prompt, or -1 if
// the prompt is empty.
func (p Prompt) LastIndex() int {
	if len(p.Messages) == 0 {
		return -1
	}
	return p.Messages[len(p.Messages)-1].Index
}
