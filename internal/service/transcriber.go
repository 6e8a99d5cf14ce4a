package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-resty/resty/v2"

	"github.com/voicelingua/voicelingua/internal/config"
	"github.com/voicelingua/voicelingua/internal/logger"
)

// Transcriber converts audio into text.
type Transcriber interface {
	// Transcribe runs speech-to-text over the audio file at path.
	Transcribe(ctx context.Context, path string) (string, error)
}

// transcriptionResponse is the OpenAI-compatible response body of the
// audio transcription endpoint.
type transcriptionResponse struct {
	Text string `json:"text"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// WhisperTranscriber calls an OpenAI-compatible speech-to-text endpoint
// (Whisper or a compatible server).
type WhisperTranscriber struct {
	client *resty.Client
	model  string
}

// NewWhisperTranscriber creates a transcription client.
// Parameters:
//   - cfg: endpoint, credentials, model name, and request timeout.
// Returns:
//   - *WhisperTranscriber: configured client.
func NewWhisperTranscriber(cfg *config.TranscriptionConfig) *WhisperTranscriber {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Authorization", "Bearer "+cfg.APIKey)

	return &WhisperTranscriber{
		client: client,
		model:  cfg.Model,
	}
}

// Transcribe runs speech-to-text over the audio file at path.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - path: local path of the audio file.
// Returns:
//   - string: transcribed text.
//   - error: wrapped as transient for timeouts, 429, and 5xx responses.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	var result transcriptionResponse
	var errBody apiError

	resp, err := t.client.R().
		SetContext(ctx).
		SetFileReader("file", filepath.Base(path), file).
		SetFormData(map[string]string{
			"model":           t.model,
			"response_format": "json",
		}).
		SetResult(&result).
		SetError(&errBody).
		Post("/audio/transcriptions")
	if err != nil {
		// Connection and timeout failures are retryable.
		return "", Transient(fmt.Errorf("transcription request failed: %w", err))
	}

	if resp.IsError() {
		logger.With(logger.Fields{
			logger.FieldStatus: resp.StatusCode(),
		}).Warn(ctx, "Transcription endpoint returned error: %s", errBody.Error.Message)
		err := fmt.Errorf("transcription failed with status %d: %s",
			resp.StatusCode(), errBody.Error.Message)
		return "", classifyStatus(resp.StatusCode(), err)
	}

	return result.Text, nil
}
