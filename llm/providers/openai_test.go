package providers

import (
	"net/http"
	"testing"

	"github.com/c360studio/semplan/llm"
	"github.com/stretchr/testify/assert"
)

func TestProvidersRegistered(t *testing.T) {
	assert.Equal(t, []string{"anthropic", "gemini", "ollama", "openai"}, llm.ListProviders())
	assert.IsType(t, &OpenAIProvider{}, llm.GetProvider("openai"))
	assert.Nil(t, llm.GetProvider("bedrock"))
}

func TestOpenAIProvider_SetHeaders(t *testing.T) {
	p := &OpenAIProvider{}
	tests := []struct {
		name string
		env  map[string]string
		want map[string]string
	}{
		{
			name: "openrouter attribution",
			env:  map[string]string{"OPENAI_API_KEY": "sk-or", "OPENROUTER_SITE_URL": "https://plan.example", "OPENROUTER_SITE_NAME": "semplan"},
			want: map[string]string{"Authorization": "Bearer sk-or", "HTTP-Referer": "https://plan.example", "X-Title": "semplan"},
		},
		{
			name: "nothing configured",
			env:  map[string]string{"OPENAI_API_KEY": "", "OPENROUTER_SITE_URL": "", "OPENROUTER_SITE_NAME": ""},
			want: map[string]string{"Authorization": "", "HTTP-Referer": "", "X-Title": ""},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			req, _ := http.NewRequest(http.MethodPost, p.BuildURL("", ""), nil)
			p.SetHeaders(req)
			for h, v := range tt.want {
				assert.Equal(t, v, req.Header.Get(h), h)
			}
		})
	}
}
