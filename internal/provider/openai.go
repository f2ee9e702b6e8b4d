package provider

import (
	"context"
	"net/http"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/Gemini-Podplai/mumabear/pkg/models"
)

const openAIBaseURL = "https://api.openai.com"

// OpenAIClient calls the OpenAI Chat Completions API.
type OpenAIClient struct {
	restClient
	apiKey string
}

// NewOpenAIClient creates a client for the OpenAI API.
func NewOpenAIClient(apiKey string, opts ...Option) *OpenAIClient {
	return &OpenAIClient{
		restClient: newRESTClient(models.ProviderOpenAI, openAIBaseURL, opts),
		apiKey:     apiKey,
	}
}

// Generate implements Client.
func (c *OpenAIClient) Generate(ctx context.Context, call Call) (*Completion, error) {
	body, err := buildChatBody(call)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.postJSON(ctx, c.baseURL+"/v1/chat/completions", header, body)
	if err != nil {
		return nil, err
	}

	text := gjson.GetBytes(resp, "choices.0.message.content").String()
	if text == "" {
		return nil, ErrEmptyResponse
	}
	in, out := extractTokenUsage(resp, c.provider)
	return &Completion{Content: text, InputTokens: in, OutputTokens: out}, nil
}

func buildChatBody(call Call) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	if body, err = sjson.SetBytes(body, "model", call.Model.ModelName); err != nil {
		return nil, err
	}
	if body, err = sjson.SetBytes(body, "max_tokens", call.maxTokens()); err != nil {
		return nil, err
	}
	messages := make([]map[string]string, 0, 2)
	if call.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": call.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": call.User})
	return sjson.SetBytes(body, "messages", messages)
}
