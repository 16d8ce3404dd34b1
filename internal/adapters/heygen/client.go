// Package heygen wraps the HeyGen avatar video API. Video generation is
// asynchronous: a generate call returns a job ID, and the final state arrives
// either through the status-poll endpoint or a webhook callback.
package heygen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dyncarl8-oss/auto-welcome/internal/apperr"
	"github.com/dyncarl8-oss/auto-welcome/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const serviceName = "heygen"

// Generation job states reported by the status endpoint and webhooks
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Client handles communication with the HeyGen API
type Client struct {
	APIBase    string
	UploadBase string
	APIKey     string
	HTTPClient *http.Client

	// HeyGen throttles aggressive polling, so all requests share one limiter.
	limiter *rate.Limiter
}

// NewClient creates a new HeyGen API client
func NewClient(apiBase, uploadBase, apiKey string) *Client {
	return &Client{
		APIBase:    apiBase,
		UploadBase: uploadBase,
		APIKey:     apiKey,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
}

// UploadAssetResponse is the result of uploading a binary asset
type UploadAssetResponse struct {
	AssetID  string `json:"id"`
	ImageKey string `json:"image_key"`
	URL      string `json:"url"`
}

// GenerateVideoResponse carries the asynchronous job ID
type GenerateVideoResponse struct {
	VideoID string `json:"video_id"`
}

// VideoStatusError describes a failed generation job
type VideoStatusError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// VideoStatusResponse is the state of a generation job
type VideoStatusResponse struct {
	Status       string            `json:"status"`
	VideoURL     *string           `json:"video_url"`
	ThumbnailURL *string           `json:"thumbnail_url"`
	Error        *VideoStatusError `json:"error"`
}

// AvatarGroup is a trained or training photo avatar group
type AvatarGroup struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	TrainStatus string `json:"train_status"`
}

// AvatarGroupListResponse lists the account's avatar groups
type AvatarGroupListResponse struct {
	AvatarGroupList []AvatarGroup `json:"avatar_group_list"`
}

// GroupAvatar is a single look within an avatar group
type GroupAvatar struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// GroupAvatarListResponse lists the looks of one avatar group
type GroupAvatarListResponse struct {
	AvatarList []GroupAvatar `json:"avatar_list"`
}

// Voice is a stock text-to-speech voice
type Voice struct {
	VoiceID  string `json:"voice_id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Gender   string `json:"gender"`
}

// VoiceListResponse lists the available stock voices
type VoiceListResponse struct {
	Voices []Voice `json:"voices"`
}

// WebhookEndpointResponse is the result of registering a webhook endpoint
type WebhookEndpointResponse struct {
	EndpointID string `json:"endpoint_id"`
	Secret     string `json:"secret"`
}

// GenerateAvatarIVRequest drives the Avatar IV photo-to-video endpoint. Set
// InputText and VoiceID for text-to-speech, or InputAudioURL for a prepared
// audio track. The two modes are mutually exclusive.
type GenerateAvatarIVRequest struct {
	AvatarImageURL string `json:"avatar_image_url"`
	InputText      string `json:"input_text,omitempty"`
	VoiceID        string `json:"voice_id,omitempty"`
	InputAudioURL  string `json:"input_audio_url,omitempty"`
	Test           bool   `json:"test,omitempty"`
	Title          string `json:"title,omitempty"`
}

// envelope is the common HeyGen response wrapper
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// UploadAsset uploads raw binary data (image or audio) to the upload host.
// HeyGen expects the raw body with its content type, not multipart form data.
func (c *Client) UploadAsset(ctx context.Context, contentType string, data []byte) (*UploadAssetResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.UploadBase+"/v1/asset", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Api-Key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	logger.Base().Debug("HeyGen asset upload response",
		zap.Int("status_code", resp.StatusCode),
		zap.Int("size", len(data)),
		zap.String("content_type", contentType))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.External(serviceName, resp.StatusCode, string(bodyBytes))
	}

	var env envelope
	if err := json.Unmarshal(bodyBytes, &env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	var result UploadAssetResponse
	if err := json.Unmarshal(env.Data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode upload asset data: %w", err)
	}

	return &result, nil
}

// GenerateAvatarIV starts an Avatar IV generation job from an explicit request
func (c *Client) GenerateAvatarIV(ctx context.Context, req *GenerateAvatarIVRequest) (*GenerateVideoResponse, error) {
	var result GenerateVideoResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v2/video/av4/generate", req, &result); err != nil {
		return nil, err
	}

	logger.Base().Info("HeyGen video generation started", zap.String("video_id", result.VideoID))
	return &result, nil
}

// GetVideoStatus fetches the current state of a generation job
func (c *Client) GetVideoStatus(ctx context.Context, videoID string) (*VideoStatusResponse, error) {
	var result VideoStatusResponse
	endpoint := "/v1/video_status.get?video_id=" + url.QueryEscape(videoID)
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// ListAvatarGroups lists the account's photo avatar groups
func (c *Client) ListAvatarGroups(ctx context.Context) (*AvatarGroupListResponse, error) {
	var result AvatarGroupListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v2/avatar_group.list", nil, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// ListGroupAvatars lists the looks of one avatar group
func (c *Client) ListGroupAvatars(ctx context.Context, groupID string) (*GroupAvatarListResponse, error) {
	var result GroupAvatarListResponse
	endpoint := fmt.Sprintf("/v2/avatar_group/%s/avatars", url.PathEscape(groupID))
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// ListVoices lists the available stock text-to-speech voices
func (c *Client) ListVoices(ctx context.Context) (*VoiceListResponse, error) {
	var result VoiceListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v2/voices", nil, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// RegisterWebhook registers a callback endpoint for the given event types
func (c *Client) RegisterWebhook(ctx context.Context, callbackURL string, events []string) (*WebhookEndpointResponse, error) {
	body := map[string]interface{}{
		"url":    callbackURL,
		"events": events,
	}

	var result WebhookEndpointResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/webhook/endpoint.add", body, &result); err != nil {
		return nil, err
	}

	logger.Base().Info("HeyGen webhook registered",
		zap.String("endpoint_id", result.EndpointID),
		zap.String("url", callbackURL))
	return &result, nil
}

// doJSON sends a JSON request to the API host and decodes the data envelope
// into out. Non-2xx responses become external service errors carrying the
// upstream status and body.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, body interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.APIBase+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Base().Warn("HeyGen API error",
			zap.String("endpoint", endpoint),
			zap.Int("status_code", resp.StatusCode),
			zap.String("body", string(bodyBytes)))
		return apperr.External(serviceName, resp.StatusCode, string(bodyBytes))
	}

	var env envelope
	if err := json.Unmarshal(bodyBytes, &env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}

	return nil
}
