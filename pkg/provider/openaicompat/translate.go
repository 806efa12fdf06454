package openaicompat

import (
	"strings"

	"github.com/rhuss/toolgate/pkg/provider"
)

// TranslateToChat converts a ChatRequest into a ChatCompletionRequest.
// model is used when the request does not name one.
func TranslateToChat(req *provider.ChatRequest, model string) ChatCompletionRequest {
	cr := ChatCompletionRequest{
		Model:       model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		N:           1,
	}
	if req.Model != "" {
		cr.Model = req.Model
	}
	for _, m := range req.Messages {
		cr.Messages = append(cr.Messages, ChatMessage{Role: m.Role, Content: m.Content})
	}
	return cr
}

// TranslateResponse converts a ChatCompletionResponse into a ChatResponse
// using only choices[0].
func TranslateResponse(resp *ChatCompletionResponse) *provider.ChatResponse {
	out := &provider.ChatResponse{
		ID:    resp.ID,
		Model: resp.Model,
	}
	if resp.Usage != nil {
		out.Usage = &provider.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
	}
	if len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	out.FinishReason = choice.FinishReason
	out.Content = ExtractContentString(choice.Message.Content)
	return out
}

// ExtractContentString flattens string or content-part array content.
func ExtractContentString(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var b strings.Builder
		for _, part := range v {
			m, ok := part.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := m["text"].(string); ok {
				b.WriteString(text)
			}
		}
		return b.String()
	}
	return ""
}
