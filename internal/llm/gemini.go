package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// geminiClient implements chatClient against Gemini via the genai SDK -
// the gemini leg is the one provider in this adapter that goes through a
// real client library rather than a hand-rolled HTTP request, matching
// how the rest of the pack talks to Gemini (the embedding engine's
// client.Models.EmbedContent call).
type geminiClient struct {
	client *genai.Client
	model  string
}

func newGeminiClient(apiKey string) (*geminiClient, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &geminiClient{client: client, model: "gemini-2.0-flash"}, nil
}

func (c *geminiClient) chatJSON(ctx context.Context, prompt string, temperature float64) (string, error) {
	temp := float32(temperature)
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents,
		&genai.GenerateContentConfig{
			Temperature:       &temp,
			ResponseMIMEType:  "application/json",
			SystemInstruction: genai.NewContentFromText(classificationSystemPrompt, genai.RoleUser),
		},
	)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("no text in response")
	}
	return text, nil
}
