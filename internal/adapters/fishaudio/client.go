// Package fishaudio wraps the Fish Audio voice cloning API. A model is
// trained from an uploaded voice sample; once its state reaches trained it
// can synthesize speech in the cloned voice.
package fishaudio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/dyncarl8-oss/auto-welcome/internal/apperr"
	"github.com/dyncarl8-oss/auto-welcome/pkg/logger"
	"go.uber.org/zap"
)

const serviceName = "fish-audio"

// Model training states
const (
	ModelStateTraining = "training"
	ModelStateTrained  = "trained"
	ModelStateFailed   = "failed"
)

// Client handles communication with the Fish Audio API
type Client struct {
	APIBase    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new Fish Audio API client
func NewClient(apiBase, apiKey string) *Client {
	return &Client{
		APIBase: apiBase,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Model is a voice model record
type Model struct {
	ID          string `json:"_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	State       string `json:"state"`
}

// CreateModelRequest holds the inputs for training a new voice model
type CreateModelRequest struct {
	Title       string
	Description string
	FileName    string
	VoiceSample []byte
}

// SynthesizeRequest holds the inputs for text-to-speech with a cloned voice
type SynthesizeRequest struct {
	Text        string `json:"text"`
	ReferenceID string `json:"reference_id"`
	Format      string `json:"format,omitempty"`
}

// CreateModel uploads a voice sample and starts training a model from it.
// Training continues asynchronously; poll GetModel until the state settles.
func (c *Client) CreateModel(ctx context.Context, req *CreateModelRequest) (*Model, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fields := map[string]string{
		"title":       req.Title,
		"description": req.Description,
		"visibility":  "private",
		"type":        "tts",
		"train_mode":  "fast",
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", key, err)
		}
	}

	part, err := writer.CreateFormFile("voices", req.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(req.VoiceSample); err != nil {
		return nil, fmt.Errorf("failed to write voice sample: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBase+"/model", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Base().Warn("Fish Audio model creation failed",
			zap.Int("status_code", resp.StatusCode),
			zap.String("body", string(bodyBytes)))
		return nil, apperr.External(serviceName, resp.StatusCode, string(bodyBytes))
	}

	var model Model
	if err := json.Unmarshal(bodyBytes, &model); err != nil {
		return nil, fmt.Errorf("failed to decode model response: %w", err)
	}

	logger.Base().Info("Fish Audio model created",
		zap.String("model_id", model.ID),
		zap.String("state", model.State))
	return &model, nil
}

// GetModel fetches a voice model, including its training state
func (c *Client) GetModel(ctx context.Context, modelID string) (*Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIBase+"/model/"+url.PathEscape(modelID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.External(serviceName, resp.StatusCode, string(bodyBytes))
	}

	var model Model
	if err := json.Unmarshal(bodyBytes, &model); err != nil {
		return nil, fmt.Errorf("failed to decode model response: %w", err)
	}

	return &model, nil
}

// Synthesize renders text as speech in the referenced cloned voice and
// returns the raw audio bytes.
func (c *Client) Synthesize(ctx context.Context, req *SynthesizeRequest) ([]byte, error) {
	if req.Format == "" {
		req.Format = "mp3"
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBase+"/v1/tts", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.External(serviceName, resp.StatusCode, string(audio))
	}

	logger.Base().Debug("Fish Audio synthesis complete",
		zap.String("reference_id", req.ReferenceID),
		zap.Int("audio_bytes", len(audio)))
	return audio, nil
}
