// Command demo wires a minimal single-node strategy to a fake LLM executor
// and drives it through the Agent Runner, exercising the Strategy Graph
// interpreter, the Feature Pipeline's otelspans feature, and the markdown
// structured decoder over the (fake) model's streamed output.
package main

import (
	"context"
	"fmt"

	"github.com/agentkit/agentrt/agent"
	"github.com/agentkit/agentrt/environment"
	"github.com/agentkit/agentrt/features/otelspans"
	"github.com/agentkit/agentrt/hooks"
	"github.com/agentkit/agentrt/llm"
	"github.com/agentkit/agentrt/runner"
	"github.com/agentkit/agentrt/stream"
	"github.com/agentkit/agentrt/strategy"
	"github.com/agentkit/agentrt/telemetry"
	"github.com/agentkit/agentrt/tools"
)

// fixedExecutor is a trivial llm.Executor that always answers with the same
// structured-markdown assistant message, standing in for a real provider
// adapter (providers/anthropic, providers/openai, providers/bedrock) in
// this self-contained example.
type fixedExecutor struct{}

const planText = "# Plan\n- gather requirements\n- draft design\n## Risks\n- schedule slip\n"

func (fixedExecutor) Execute(ctx context.Context, prompt agent.Prompt, model llm.LLModel, descriptors []tools.ToolDescriptor) ([]agent.Message, error) {
	return []agent.Message{agent.NewAssistantMessage(planText, nil)}, nil
}

func (fixedExecutor) ExecuteStreaming(ctx context.Context, prompt agent.Prompt, model llm.LLModel) (stream.LazySequence[string], error) {
	values := make(chan string, 4)
	errs := make(chan error)
	values <- "# Plan\n"
	values <- "- gather requirements\n"
	values <- "- draft design\n"
	close(values)
	close(errs)
	return stream.NewChannelSequence(values, errs, func() error { return nil }), nil
}

func (e fixedExecutor) ExecuteMultipleChoices(ctx context.Context, prompt agent.Prompt, model llm.LLModel, descriptors []tools.ToolDescriptor) ([]llm.Choice, error) {
	msgs, err := e.Execute(ctx, prompt, model, descriptors)
	if err != nil {
		return nil, err
	}
	return []llm.Choice{llm.Choice(msgs)}, nil
}

func (fixedExecutor) Moderate(ctx context.Context, prompt agent.Prompt, model llm.LLModel) (llm.ModerationResult, error) {
	return llm.ModerationResult{}, nil
}

func (fixedExecutor) Embed(ctx context.Context, text string, model llm.LLModel) ([]float64, error) {
	return nil, nil
}

// planNode calls the executor through the Environment and appends its
// reply to the Run's history, returning the reply text as the node's
// output. plan is both the start and the finish node, so that text is the
// Run's output.
func planNode(ctx context.Context, env environment.Environment, input any) (any, error) {
	msgs, err := env.LLMExecute(ctx, env.Prompt(), env.DescribeTools())
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		env.Append(m)
	}
	if len(msgs) == 0 {
		return "", nil
	}
	return msgs[0].Text, nil
}

func main() {
	ctx := context.Background()

	sub, err := strategy.NewSubgraphBuilder("main").
		AddNode(strategy.NodeFunc{NodeName: "plan", Fn: planNode}).
		Start("plan").
		Finish("plan").
		Build()
	if err != nil {
		panic(err)
	}

	strat, err := strategy.NewStrategyBuilder("demo").AddSubgraph(sub).Entry("main").Build()
	if err != nil {
		panic(err)
	}

	registry := tools.NewRegistry()
	pipeline := hooks.NewPipeline()
	provider := telemetry.NewNoopProvider()
	if err := pipeline.Install(otelspans.New(provider.Tracer)); err != nil {
		panic(err)
	}

	r := runner.New("demo.agent", strat, registry, fixedExecutor{}, pipeline, provider)
	result, err := r.Run(ctx, "draft a plan")
	if err != nil {
		panic(err)
	}
	fmt.Println("node output:", result.Output)

	model := llm.NewLLModel("demo", "fixed-v1", llm.CapCompletion)
	decoder := stream.NewStructuredDecoder()
	seq, err := fixedExecutor{}.ExecuteStreaming(ctx, agent.NewPrompt(), model)
	if err != nil {
		panic(err)
	}
	sections, err := stream.DecodeMarkdown(ctx, seq, decoder)
	if err != nil {
		panic(err)
	}
	for _, s := range sections {
		fmt.Printf("section %q: %v\n", s.Header, s.Bullets)
	}
}
