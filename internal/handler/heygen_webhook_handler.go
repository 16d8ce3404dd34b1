package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dyncarl8-oss/auto-welcome/internal/apperr"
	"github.com/dyncarl8-oss/auto-welcome/internal/repository"
	"github.com/dyncarl8-oss/auto-welcome/internal/services/welcome"
	"github.com/dyncarl8-oss/auto-welcome/pkg/logger"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// HeyGenWebhookHandler handles render completion callbacks from the video
// provider
type HeyGenWebhookHandler struct {
	repos         repository.RepositoryManager
	service       *welcome.Service
	webhookSecret string
}

// NewHeyGenWebhookHandler creates a new provider webhook handler
func NewHeyGenWebhookHandler(repos repository.RepositoryManager, service *welcome.Service, webhookSecret string) *HeyGenWebhookHandler {
	return &HeyGenWebhookHandler{
		repos:         repos,
		service:       service,
		webhookSecret: webhookSecret,
	}
}

// SetupHeyGenWebhookRoutes registers the provider webhook routes
func (h *HeyGenWebhookHandler) SetupHeyGenWebhookRoutes(router *mux.Router) {
	router.HandleFunc("/api/heygen/webhook", h.HandleWebhook).Methods("POST")
}

type heyGenWebhookEvent struct {
	EventType string `json:"event_type"`
	EventData struct {
		VideoID    string `json:"video_id"`
		URL        string `json:"url"`
		CallbackID string `json:"callback_id"`
	} `json:"event_data"`
}

// HandleWebhook verifies the signature when a secret is configured and
// finalizes the matching video on a successful render event
func (h *HeyGenWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if h.webhookSecret != "" {
		mac := hmac.New(sha256.New, []byte(h.webhookSecret))
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))
		if !hmac.Equal([]byte(expected), []byte(r.Header.Get("signature"))) {
			logger.Base().Warn("provider webhook signature mismatch")
			writeError(w, http.StatusUnauthorized, "Invalid signature")
			return
		}
	}

	var event heyGenWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		logger.Base().Warn("unparseable provider webhook payload", zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
		return
	}

	logger.Base().Info("provider webhook received",
		zap.String("event_type", event.EventType),
		zap.String("video_id", event.EventData.VideoID))

	if event.EventType != "avatar_video.success" {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
		return
	}
	if event.EventData.VideoID == "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
		return
	}

	video, err := h.repos.Video().GetByHeyGenID(r.Context(), event.EventData.VideoID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			logger.Base().Warn("no video matches provider callback",
				zap.String("video_id", event.EventData.VideoID))
		} else {
			logger.Base().Error("video lookup failed", zap.Error(err))
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
		return
	}

	var videoURL *string
	if event.EventData.URL != "" {
		videoURL = &event.EventData.URL
	}
	if err := h.service.CompleteAndDeliver(r.Context(), video.ID, videoURL, nil); err != nil {
		logger.Base().Error("failed to finalize video from provider callback",
			zap.String("video_id", video.ID),
			zap.Error(err))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
