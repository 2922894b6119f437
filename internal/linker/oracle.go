package linker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mohammad-safakhou/storyline/models"
)

const groupingSystemPrompt = `You compare two lists of news stories. List A is from an earlier day, list B from a later day. Return a JSON array of objects {"group_a_index": int, "group_b_index": int}, one per pair of stories that describe the same real-world event. Indices are zero-based positions within each list. Return [] when nothing matches. Return only JSON.`

// OpenAIOracle confirms same-event story pairs through a chat-completion
// model. It satisfies GroupingOracle; the linker treats it as opaque.
type OpenAIOracle struct {
	client *openai.Client
	model  string
}

// NewOpenAIOracle builds the oracle. baseURL is optional for compatible
// gateways.
func NewOpenAIOracle(apiKey, model, baseURL string) (*OpenAIOracle, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("grouping oracle requires an API key")
	}
	if model == "" {
		return nil, fmt.Errorf("grouping oracle requires a model name")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIOracle{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (o *OpenAIOracle) GroupStories(ctx context.Context, groupA, groupB []models.StoryDigest) ([]models.GroupPair, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: groupingSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildGroupingPrompt(groupA, groupB)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}
	return parseGroupPairs(resp.Choices[0].Message.Content)
}

func buildGroupingPrompt(groupA, groupB []models.StoryDigest) string {
	var b strings.Builder
	writeGroup := func(name string, digests []models.StoryDigest) {
		fmt.Fprintf(&b, "List %s:\n", name)
		for i, d := range digests {
			fmt.Fprintf(&b, "%d. %s\n", i, d.Title)
			if d.Summary != "" {
				fmt.Fprintf(&b, "   Summary: %s\n", d.Summary)
			}
			for _, kp := range d.KeyPoints {
				fmt.Fprintf(&b, "   - %s\n", kp)
			}
		}
		b.WriteString("\n")
	}
	writeGroup("A", groupA)
	writeGroup("B", groupB)
	return b.String()
}

// parseGroupPairs decodes the model output, tolerating markdown code fences
// around the JSON.
func parseGroupPairs(content string) ([]models.GroupPair, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}
	var pairs []models.GroupPair
	if err := json.Unmarshal([]byte(content), &pairs); err != nil {
		return nil, fmt.Errorf("decoding oracle output: %w", err)
	}
	return pairs, nil
}
