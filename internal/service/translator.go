package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/voicelingua/voicelingua/internal/config"
	"github.com/voicelingua/voicelingua/internal/logger"
)

// TranslationOutput is a single translation produced by a Translator.
type TranslationOutput struct {
	TranslatedText string
	Confidence     *float64
	Engine         string
}

// Translator converts text from one language to another.
type Translator interface {
	// Translate renders text into targetLanguage.
	Translate(ctx context.Context, text, targetLanguage string) (*TranslationOutput, error)
}

// chatRequest is the OpenAI-compatible chat completion request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the OpenAI-compatible chat completion response body.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Model string `json:"model"`
}

var languageNames = map[string]string{
	"en": "English",
	"zh": "Chinese",
	"ja": "Japanese",
	"ko": "Korean",
	"fr": "French",
	"de": "German",
	"es": "Spanish",
	"it": "Italian",
	"pt": "Portuguese",
	"ru": "Russian",
}

// LLMTranslator calls an OpenAI-compatible chat completion endpoint with a
// translation prompt.
type LLMTranslator struct {
	client *resty.Client
	model  string
}

// NewLLMTranslator creates a translation client.
// Parameters:
//   - cfg: endpoint, credentials, model name, and request timeout.
// Returns:
//   - *LLMTranslator: configured client.
func NewLLMTranslator(cfg *config.TranslationConfig) *LLMTranslator {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Authorization", "Bearer "+cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &LLMTranslator{
		client: client,
		model:  cfg.Model,
	}
}

// Translate renders text into targetLanguage via the chat endpoint.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - text: source text.
//   - targetLanguage: ISO 639-1 language code.
// Returns:
//   - *TranslationOutput: translated text with engine metadata.
//   - error: wrapped as transient for timeouts, 429, and 5xx responses.
func (t *LLMTranslator) Translate(ctx context.Context, text, targetLanguage string) (*TranslationOutput, error) {
	langName := languageNames[targetLanguage]
	if langName == "" {
		langName = targetLanguage
	}

	req := chatRequest{
		Model: t.model,
		Messages: []chatMessage{
			{
				Role: "system",
				Content: fmt.Sprintf(
					"You are a professional translator. Translate the user's text into %s. "+
						"Output only the translation, with no explanation.", langName),
			},
			{Role: "user", Content: text},
		},
		Temperature: 0.2,
	}

	var result chatResponse
	var errBody apiError

	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		SetError(&errBody).
		Post("/chat/completions")
	if err != nil {
		return nil, Transient(fmt.Errorf("translation request failed: %w", err))
	}

	if resp.IsError() {
		logger.With(logger.Fields{
			logger.FieldStatus:   resp.StatusCode(),
			logger.FieldLanguage: targetLanguage,
		}).Warn(ctx, "Translation endpoint returned error: %s", errBody.Error.Message)
		err := fmt.Errorf("translation failed with status %d: %s",
			resp.StatusCode(), errBody.Error.Message)
		return nil, classifyStatus(resp.StatusCode(), err)
	}

	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("translation response contained no choices")
	}

	return &TranslationOutput{
		TranslatedText: strings.TrimSpace(result.Choices[0].Message.Content),
		Engine:         result.Model,
	}, nil
}
