// Package assistant answers questions about the active dataset through an
// OpenAI-compatible chat completion API.
package assistant

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Warnings returned in place of an answer. Callers show them verbatim.
const (
	WarnMissingKey = "⚠️ Assistant API key is missing. Set assistant.api_key in the config or ASSISTANT_API_KEY in .env."
	WarnFailed     = "Error interacting with AI: "
	WarnNoAnswer   = "⚠️ The assistant returned no answer."
)

// NoDataset is the dataset context used when nothing is active.
const NoDataset = "No dataset is currently loaded."

const persona = `You are AutoDS, an expert Data Science Assistant.
Help users analyze their data, suggest cleaning steps, and explain ML concepts.
Context about the user's data is provided below. Use it to give specific, relevant answers.
If the user asks to perform an action (like "drop column X"), explain which workbench transformation does it.`

// Config selects the endpoint and model.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Turn is one exchanged chat message.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Roles used in Turn.
const (
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// Assistant wraps an OpenAI client. A zero API key yields an Assistant that
// only returns WarnMissingKey.
type Assistant struct {
	client *openai.Client
	model  string
	log    *slog.Logger
}

// New builds an Assistant from cfg.
func New(cfg Config, logger *slog.Logger) *Assistant {
	a := &Assistant{model: cfg.Model, log: logger}
	if a.model == "" {
		a.model = openai.GPT4oMini
	}
	if cfg.APIKey == "" {
		return a
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	a.client = openai.NewClientWithConfig(oc)
	return a
}

// Enabled reports whether an API key was configured.
func (a *Assistant) Enabled() bool { return a.client != nil }

// SystemPrompt assembles the persona, the dataset context and the action
// history.
func SystemPrompt(datasetContext string, actions []string) string {
	if strings.TrimSpace(datasetContext) == "" {
		datasetContext = NoDataset
	}
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n=== DATASET CONTEXT ===\n")
	b.WriteString(datasetContext)
	if len(actions) > 0 {
		b.WriteString("\n\n=== USER ACTIONS HISTORY ===\n")
		b.WriteString(strings.Join(actions, "\n"))
	}
	b.WriteString("\n")
	return b.String()
}

// Chat answers question given prior turns. It never fails: problems come
// back as a warning string.
func (a *Assistant) Chat(ctx context.Context, datasetContext string, actions []string, history []Turn, question string) string {
	if a.client == nil {
		return WarnMissingKey
	}
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt(datasetContext, actions)})
	for _, t := range history {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: t.Role, Content: t.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: "User Question: " + question})
	return a.complete(ctx, msgs)
}

// Insight produces a one-off answer for prompt over an optional data summary.
func (a *Assistant) Insight(ctx context.Context, prompt, dataSummary string) string {
	if a.client == nil {
		return WarnMissingKey
	}
	var b strings.Builder
	if dataSummary != "" {
		b.WriteString("DATA CONTEXT:\n" + dataSummary + "\n\n")
	}
	b.WriteString("You are an expert Data Science Assistant. " + prompt)
	return a.complete(ctx, []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: b.String()}})
}

func (a *Assistant) complete(ctx context.Context, msgs []openai.ChatCompletionMessage) string {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    a.model,
		Messages: msgs,
	})
	if err != nil {
		a.log.Warn("assistant: completion failed", slog.String("model", a.model), slog.String("error", err.Error()))
		return WarnFailed + err.Error()
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		a.log.Warn("assistant: empty completion", slog.String("model", a.model))
		return WarnNoAnswer
	}
	a.log.Debug("assistant: completion", slog.String("finish_reason", string(resp.Choices[0].FinishReason)))
	return resp.Choices[0].Message.Content
}
