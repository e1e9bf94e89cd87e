package providers

import (
	"context"
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"
)

// Script is the structured output of the script-generation stage.
type Script struct {
	Title        string `json:"title"`
	Hook         string `json:"hook"`
	Narrative    string `json:"narrative"`
	CTA          string `json:"cta"`
	FirstComment string `json:"firstComment"`
}

// Narration is the full spoken text of the script.
func (s Script) Narration() string {
	return s.Hook + " " + s.Narrative + " " + s.CTA
}

// Caption is the post body text.
func (s Script) Caption() string {
	return s.Hook + "\n\n" + s.Narrative + "\n\n" + s.CTA
}

const scriptSystemPrompt = "Create scam-awareness short-form video scripts. " +
	"Respond with JSON containing title, hook, narrative, cta and firstComment."

var scriptSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "title": {"type": "string"},
    "hook": {"type": "string"},
    "narrative": {"type": "string"},
    "cta": {"type": "string"},
    "firstComment": {"type": "string"}
  },
  "required": ["title", "hook", "narrative", "cta", "firstComment"],
  "additionalProperties": false
}`)

// GenerateScript turns source material into a structured script via the
// OpenAI-compatible completion endpoint, constrained by a JSON schema.
func (c *Client) GenerateScript(ctx context.Context, material Material) (Script, error) {
	cred, err := c.creds.Acquire(ProviderScript)
	if err != nil {
		return Script{}, err
	}

	clientCfg := openai.DefaultConfig(cred.Secret)
	clientCfg.BaseURL = c.cfg.ScriptBaseURL
	clientCfg.HTTPClient = c.http
	llm := openai.NewClientWithConfig(clientCfg)

	materialJSON, err := json.Marshal(material)
	if err != nil {
		return Script{}, provErr(ProviderScript, "encoding material", err)
	}

	resp, err := llm.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.ScriptModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: scriptSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(materialJSON)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "script",
				Schema: scriptSchema,
				Strict: true,
			},
		},
	})
	if err != nil {
		c.report(ProviderScript, cred.ID, true)
		return Script{}, provErr(ProviderScript, "chat completion", err)
	}
	if len(resp.Choices) == 0 {
		c.report(ProviderScript, cred.ID, true)
		return Script{}, provErrf(ProviderScript, "chat completion", "empty response")
	}

	var script Script
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &script); err != nil {
		c.report(ProviderScript, cred.ID, true)
		return Script{}, provErr(ProviderScript, "decoding script", err)
	}
	c.report(ProviderScript, cred.ID, false)
	return script, nil
}
