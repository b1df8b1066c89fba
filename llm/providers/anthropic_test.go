package providers

import (
	"net/http"
	"testing"

	"github.com/c360studio/semplan/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicProvider_BuildURL(t *testing.T) {
	p := &AnthropicProvider{}
	assert.Equal(t, "https://api.anthropic.com/v1/messages", p.BuildURL("", "claude-sonnet"))
	assert.Equal(t, "http://mock:8000/v1/messages", p.BuildURL("http://mock:8000/", "mock-planner"))
}

func TestAnthropicProvider_SetHeaders(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	req, _ := http.NewRequest(http.MethodPost, "http://mock/v1/messages", nil)
	(&AnthropicProvider{}).SetHeaders(req)
	assert.Equal(t, "sk-ant", req.Header.Get("x-api-key"))
	assert.Equal(t, anthropicVersion, req.Header.Get("anthropic-version"))
}

func TestAnthropicProvider_BuildRequestBody(t *testing.T) {
	p := &AnthropicProvider{}
	zero := 0.0

	t.Run("stage request", func(t *testing.T) {
		body, err := p.BuildRequestBody("claude-sonnet", llm.Request{
			Messages: []llm.Message{
				{Role: llm.RoleSystem, Content: "あなたはタスク分析の専門家です"},
				{Role: llm.RoleSystem, Content: "JSONのみで回答"},
				{Role: llm.RoleUser, Content: "来月の引越し準備"},
			},
			Temperature: &zero,
			MaxTokens:   1024,
			JSONMode:    true,
		})
		require.NoError(t, err)
		got := decodeBody(t, body)

		assert.Equal(t, "あなたはタスク分析の専門家です\n\nJSONのみで回答", got["system"])
		assert.Equal(t, []any{map[string]any{"role": "user", "content": "来月の引越し準備"}}, got["messages"])
		assert.Contains(t, got, "temperature")
		assert.Equal(t, 0.0, got["temperature"])
		assert.Equal(t, 1024.0, got["max_tokens"])
		assert.NotContains(t, got, "response_format", "json mode has no Messages API switch")
	})

	t.Run("defaults", func(t *testing.T) {
		body, err := p.BuildRequestBody("claude-sonnet", llm.Request{
			Messages: []llm.Message{{Role: llm.RoleUser, Content: "来月の引越し準備"}},
		})
		require.NoError(t, err)
		got := decodeBody(t, body)

		assert.Equal(t, float64(anthropicDefaultMaxTokens), got["max_tokens"], "max_tokens is mandatory")
		assert.NotContains(t, got, "temperature")
		assert.NotContains(t, got, "system")
	})
}

func TestAnthropicProvider_ParseResponse(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantText  string
		wantModel string
		wantErr   string
	}{
		{
			name:      "text blocks are joined",
			body:      `{"model": "claude-sonnet-4", "content": [{"type": "text", "text": "{\"subtasks\": "}, {"type": "tool_use", "id": "t"}, {"type": "text", "text": "[]}"}], "stop_reason": "end_turn", "usage": {"input_tokens": 30, "output_tokens": 8}}`,
			wantText:  `{"subtasks": []}`,
			wantModel: "claude-sonnet-4",
		},
		{
			name:      "model falls back to the endpoint model",
			body:      `{"content": [{"type": "text", "text": "ok"}]}`,
			wantText:  "ok",
			wantModel: "claude-sonnet",
		},
		{name: "not JSON", body: `upstream error`, wantErr: "parse anthropic response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := (&AnthropicProvider{}).ParseResponse([]byte(tt.body), "claude-sonnet")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, resp.Content)
			assert.Equal(t, tt.wantModel, resp.Model)
		})
	}

	resp, err := (&AnthropicProvider{}).ParseResponse([]byte(tests[0].body), "claude-sonnet")
	require.NoError(t, err)
	assert.Equal(t, "end_turn", resp.FinishReason)
	assert.Equal(t, llm.TokenUsage{PromptTokens: 30, CompletionTokens: 8, TotalTokens: 38}, resp.Usage)
}
